package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// QueueDeliverer is the delivery collaborator: activities handed to it
// are parked in the sqlite-backed queue and pushed out by a background
// worker with exponential backoff. The inbox and outbox only ever see
// the Deliverer interface.
type QueueDeliverer struct {
	DB   *db.DB
	Conf *util.AppConfig
}

// Deliver enqueues one activity for a remote inbox. The actual HTTP
// work happens later on the worker goroutine.
func (q *QueueDeliverer) Deliver(activityJSON string, inboxURI string) error {
	item := &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		InboxURI:     inboxURI,
		ActivityJSON: activityJSON,
		Attempts:     0,
		NextRetryAt:  time.Now(),
		CreatedAt:    time.Now(),
	}
	return q.DB.EnqueueDelivery(item)
}

// StartWorker starts the background worker that drains the queue.
func (q *QueueDeliverer) StartWorker() {
	log.Println("Starting delivery worker...")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			q.processQueue()
		}
	}()
}

func (q *QueueDeliverer) processQueue() {
	err, items := q.DB.ReadPendingDeliveries(50)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d pending deliveries", len(*items))

	for _, item := range *items {
		if err := q.deliverItem(&item); err != nil {
			item.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(item.Attempts-1, 5)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if item.Attempts >= 10 {
				log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
				q.DB.DeleteDelivery(item.Id)
			} else {
				log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v",
					item.InboxURI, item.Attempts, backoffMinutes, err)
				q.DB.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			log.Printf("DeliveryWorker: Successfully delivered to %s", item.InboxURI)
			q.DB.DeleteDelivery(item.Id)
		}
	}
}

// deliverItem signs and POSTs a single queued activity. The signing key
// is the legacy pair of whichever local actor authored the activity.
func (q *QueueDeliverer) deliverItem(item *domain.DeliveryQueueItem) error {
	username, err := q.activityAuthor(item.ActivityJSON)
	if err != nil {
		return err
	}

	pairs, err := GetOrCreateKeyPairs(q.DB, username)
	if err != nil {
		return fmt.Errorf("failed to load keys: %w", err)
	}
	privateKey, err := SigningKey(pairs)
	if err != nil {
		return err
	}

	payload := []byte(item.ActivityJSON)
	hash := sha256.Sum256(payload)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	keyID := KeyIRI(q.Conf.Conf.Domain, username, domain.KeyTypeRSA)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}

// activityAuthor maps the activity's actor URI back to the local
// username whose key signs the request.
func (q *QueueDeliverer) activityAuthor(activityJSON string) (string, error) {
	var activity Activity
	if err := json.Unmarshal([]byte(activityJSON), &activity); err != nil {
		return "", fmt.Errorf("failed to parse queued activity: %w", err)
	}
	if activity.Actor == "" {
		return "", fmt.Errorf("queued activity missing actor field")
	}
	username, ok := ParseActorIRI(q.Conf.Conf.Domain, activity.Actor)
	if !ok {
		return "", fmt.Errorf("queued activity actor %q is not local", activity.Actor)
	}
	return username, nil
}
