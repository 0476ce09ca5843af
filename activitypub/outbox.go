package activitypub

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// PublicCollection is the well-known recipient meaning "visible to
// anyone".
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"

// BuildAccept constructs the Accept answering a Follow: actor is the
// followed local actor, to the original follower, object the original
// Follow activity itself.
func BuildAccept(host string, username string, follow FollowActivity, followerURI string) (string, error) {
	accept := map[string]interface{}{
		"@context": activityStreamsContext,
		"id":       fmt.Sprintf("https://%s/activities/%s", host, uuid.New().String()),
		"type":     "Accept",
		"actor":    ActorIRI(host, username),
		"to":       followerURI,
		"object": map[string]interface{}{
			"id":     follow.ID,
			"type":   "Follow",
			"actor":  follow.Actor,
			"object": follow.Object,
		},
	}

	buf, err := json.Marshal(accept)
	if err != nil {
		return "", fmt.Errorf("failed to marshal Accept: %w", err)
	}
	return string(buf), nil
}

// FanOutPost wraps a freshly authored post in a Create activity and
// hands one copy per distinct follower inbox to the deliverer, using
// shared inboxes where the follower advertises one.
func FanOutPost(database *db.DB, conf *util.AppConfig, deliver Deliverer, username string, post *domain.Post) error {
	host := conf.Conf.Domain
	note := NoteObject(host, username, post)

	create := map[string]interface{}{
		"@context":  activityStreamsContext,
		"id":        fmt.Sprintf("https://%s/activities/%s", host, uuid.New().String()),
		"type":      "Create",
		"actor":     ActorIRI(host, username),
		"published": note["published"],
		"to":        note["to"],
		"cc":        note["cc"],
		"object":    note,
	}

	activityJSON, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to marshal Create: %w", err)
	}

	inboxes, err := collectFollowerInboxes(database, username)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		log.Printf("Outbox: No followers to deliver post %d to", post.Id)
		return nil
	}

	for _, inboxURI := range inboxes {
		if err := deliver.Deliver(string(activityJSON), inboxURI); err != nil {
			log.Printf("Outbox: Failed to hand off delivery to %s: %v", inboxURI, err)
		}
	}

	log.Printf("Outbox: Queued Create for post %d to %d inboxes", post.Id, len(inboxes))
	return nil
}

// collectFollowerInboxes pages through the whole followers collection
// and reduces it to distinct delivery targets.
func collectFollowerInboxes(database *db.DB, username string) ([]string, error) {
	seen := make(map[string]bool)
	var inboxes []string

	cursor := db.MaxCursor
	for {
		err, edges := database.ReadFollowers(username, cursor, followersPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read followers: %w", err)
		}
		if edges == nil || len(*edges) == 0 {
			break
		}
		for _, edge := range *edges {
			inboxURI := edge.Recipient.InboxURL
			if edge.Recipient.SharedInboxURL != "" {
				inboxURI = edge.Recipient.SharedInboxURL
			}
			if inboxURI == "" || seen[inboxURI] {
				continue
			}
			seen[inboxURI] = true
			inboxes = append(inboxes, inboxURI)
		}
		cursor = (*edges)[len(*edges)-1].EdgeId
	}

	return inboxes, nil
}
