package activitypub

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// IRI builders. Every URI this node persists or serves comes from these,
// so a URI computed at write time always equals the one computed at read
// time. host is the node's configured public domain.

func ActorIRI(host string, username string) string {
	return fmt.Sprintf("https://%s/users/%s", host, username)
}

// InboxIRI returns the actor's inbox, or the node-wide shared inbox when
// username is empty.
func InboxIRI(host string, username string) string {
	if username == "" {
		return fmt.Sprintf("https://%s/inbox", host)
	}
	return fmt.Sprintf("https://%s/users/%s/inbox", host, username)
}

func FollowersIRI(host string, username string) string {
	return fmt.Sprintf("https://%s/users/%s/followers", host, username)
}

func PostIRI(host string, username string, postId int64) string {
	return fmt.Sprintf("https://%s/users/%s/posts/%d", host, username, postId)
}

func KeyIRI(host string, username string, keyType string) string {
	if keyType == domain.KeyTypeEd25519 {
		return ActorIRI(host, username) + "#ed25519-key"
	}
	return ActorIRI(host, username) + "#main-key"
}

// ParseActorIRI is the inverse of ActorIRI. It accepts only URIs this
// node itself would issue: https scheme, exact host match, and a two
// segment /users/{username} path with a valid username. Everything else
// is not ours.
func ParseActorIRI(host string, uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "https" || parsed.Host != host {
		return "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "users" {
		return "", false
	}
	username := parts[1]
	if !util.ValidUsername(username) {
		return "", false
	}
	return username, true
}

// ResolveLocalActor looks up the local account's actor row by username.
// A missing user surfaces as sql.ErrNoRows, never a panic.
func ResolveLocalActor(database *db.DB, username string) (error, *domain.Actor) {
	return database.ReadLocalActorByUsername(username)
}
