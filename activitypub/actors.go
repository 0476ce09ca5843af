package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	ID                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Inbox             string      `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	URL       string `json:"url"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// FetchActorDocument dereferences an actor document from a remote server.
func FetchActorDocument(actorURI string) (*ActorResponse, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	// Without an id and inbox there is nothing to deliver back to.
	if actor.ID == "" || actor.Inbox == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	return &actor, nil
}

// UpsertFetchedActor inserts or refreshes the cached actor row for a
// dereferenced actor document and returns the row with its id filled in.
func UpsertFetchedActor(database *db.DB, doc *ActorResponse) (*domain.Actor, error) {
	host, err := extractHost(doc.ID)
	if err != nil {
		return nil, err
	}

	remote := &domain.Actor{
		URI:            doc.ID,
		Handle:         fmt.Sprintf("@%s@%s", doc.PreferredUsername, host),
		Name:           doc.Name,
		InboxURL:       doc.Inbox,
		SharedInboxURL: doc.Endpoints.SharedInbox,
		URL:            doc.URL,
	}

	if err := database.UpsertRemoteActor(remote); err != nil {
		return nil, fmt.Errorf("failed to store remote actor: %w", err)
	}

	return remote, nil
}

// extractHost extracts the host from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractHost(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}
