package activitypub

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
)

// ActivityKind is the closed set of inbound activity kinds this node
// acts on. Everything else is KindUnknown and ignored, so unknown types
// from newer implementations pass through harmlessly.
type ActivityKind int

const (
	KindUnknown ActivityKind = iota
	KindFollow
	KindUndo
)

func KindOf(activityType string) ActivityKind {
	switch activityType {
	case "Follow":
		return KindFollow
	case "Undo":
		return KindUndo
	default:
		return KindUnknown
	}
}

// Activity represents a generic ActivityPub activity
type Activity struct {
	Context interface{}     `json:"@context"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object"`
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	Context interface{} `json:"@context"`
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Actor   string      `json:"actor"`
	Object  string      `json:"object"` // URI of the person being followed
}

// Deliverer takes a finished activity and gets it to a remote inbox,
// retrying as it sees fit. The inbox never blocks on actual delivery.
type Deliverer interface {
	Deliver(activityJSON string, inboxURI string) error
}

// Inbox consumes activities addressed to local actors.
type Inbox struct {
	DB      *db.DB
	Conf    *util.AppConfig
	Deliver Deliverer
}

// HandleInbox processes one delivered activity. Activity-level problems
// (unknown target, malformed payload, unknown kind) are dropped with a
// log line and a 2xx: the network has no synchronous error channel back
// to the sender, so nothing is gained by failing the request.
func (ib *Inbox) HandleInbox(w http.ResponseWriter, r *http.Request, username string) {
	signature := r.Header.Get("Signature")
	if signature == "" {
		log.Printf("Inbox: Missing HTTP signature")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s for %q", activity.Type, activity.Actor, username)

	if activity.Actor == "" {
		log.Printf("Inbox: Activity has no actor, dropping")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Dereference the sender once: the document carries both the key to
	// verify the signature with and the fields the actor cache needs.
	senderDoc, err := FetchActorDocument(activity.Actor)
	if err != nil {
		log.Printf("Inbox: Failed to fetch actor %s: %v", activity.Actor, err)
		http.Error(w, "Failed to verify actor", http.StatusBadRequest)
		return
	}

	if _, err := VerifyRequest(r, senderDoc.PublicKey.PublicKeyPem); err != nil {
		log.Printf("Inbox: Signature verification failed: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	switch KindOf(activity.Type) {
	case KindFollow:
		if err := ib.handleFollow(body, senderDoc); err != nil {
			log.Printf("Inbox: Failed to handle Follow: %v", err)
			http.Error(w, "Failed to process Follow", http.StatusInternalServerError)
			return
		}
	case KindUndo:
		if err := ib.handleUndo(body); err != nil {
			log.Printf("Inbox: Failed to handle Undo: %v", err)
			http.Error(w, "Failed to process Undo", http.StatusInternalServerError)
			return
		}
	default:
		log.Printf("Inbox: Ignoring activity type: %s", activity.Type)
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleFollow records the follower and answers with an Accept. Returned
// errors are persistence failures only; anything wrong with the activity
// itself is dropped silently.
func (ib *Inbox) handleFollow(body []byte, senderDoc *ActorResponse) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		log.Printf("Inbox: Malformed Follow activity: %v", err)
		return nil
	}

	// Only URIs this node itself issues resolve to a followable actor.
	username, ok := ParseActorIRI(ib.Conf.Conf.Domain, follow.Object)
	if !ok {
		log.Printf("Inbox: Follow object %q is not a local actor, dropping", follow.Object)
		return nil
	}

	err, localActor := ResolveLocalActor(ib.DB, username)
	if err != nil {
		log.Printf("Inbox: Follow target %q does not exist, dropping", username)
		return nil
	}

	follower, err := UpsertFetchedActor(ib.DB, senderDoc)
	if err != nil {
		return err
	}

	// Insert-or-ignore: a re-delivered Follow refreshes the actor row
	// above but leaves a single edge.
	if err := ib.DB.CreateFollow(localActor.Id, follower.Id); err != nil {
		return err
	}

	accept, err := BuildAccept(ib.Conf.Conf.Domain, username, follow, follower.URI)
	if err != nil {
		return err
	}

	inboxURI := follower.InboxURL
	if follower.SharedInboxURL != "" {
		inboxURI = follower.SharedInboxURL
	}
	if err := ib.Deliver.Deliver(accept, inboxURI); err != nil {
		return err
	}

	log.Printf("Inbox: Accepted follow of %s by %s", username, follower.Handle)
	return nil
}

// handleUndo reverts a previous Follow. Anything that does not match a
// Follow of a local actor by the Undo's own sender is a silent no-op,
// including an Undo arriving before (or without) its Follow.
func (ib *Inbox) handleUndo(body []byte) error {
	var undo struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		log.Printf("Inbox: Malformed Undo activity: %v", err)
		return nil
	}

	var inner FollowActivity
	if err := json.Unmarshal(undo.Object, &inner); err != nil {
		log.Printf("Inbox: Undo wraps no parseable object, dropping")
		return nil
	}

	if KindOf(inner.Type) != KindFollow {
		log.Printf("Inbox: Undo wraps a %s, not a Follow, dropping", inner.Type)
		return nil
	}

	// The undone Follow must name its original follower, and only the
	// follower itself may retract it.
	if inner.Actor != "" && inner.Actor != undo.Actor {
		log.Printf("Inbox: Undo actor %s does not match Follow actor %s, dropping", undo.Actor, inner.Actor)
		return nil
	}

	username, ok := ParseActorIRI(ib.Conf.Conf.Domain, inner.Object)
	if !ok {
		log.Printf("Inbox: Undo(Follow) object %q is not a local actor, dropping", inner.Object)
		return nil
	}

	err, localActor := ResolveLocalActor(ib.DB, username)
	if err != nil {
		log.Printf("Inbox: Undo(Follow) target %q does not exist, dropping", username)
		return nil
	}

	if err := ib.DB.DeleteFollow(localActor.Id, undo.Actor); err != nil {
		return err
	}

	log.Printf("Inbox: Removed follow of %s by %s", username, undo.Actor)
	return nil
}
