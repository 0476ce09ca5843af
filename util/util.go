package util

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

// usernameRe is the full set of characters a local username may contain.
// The same rule gates account setup and inbound actor URI parsing.
var usernameRe = regexp.MustCompile(`^[a-z0-9_-]{1,50}$`)

func ValidUsername(username string) bool {
	return usernameRe.MatchString(username)
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

func UserAgent() string {
	return fmt.Sprintf("%s/%s ActivityPub", Name, GetVersion())
}

func NormalizeInput(text string) string {
	normalized := strings.Replace(text, "\n", " ", -1)
	normalized = html.EscapeString(normalized)
	return normalized
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

// Handle builds the @user@host form of a local account.
func Handle(username, domain string) string {
	return fmt.Sprintf("@%s@%s", username, domain)
}
