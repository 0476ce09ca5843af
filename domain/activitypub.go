package domain

import (
	"github.com/google/uuid"
	"time"
)

// Key algorithm kinds, in the order external representations expect
// them: the legacy scheme is the primary signature key, everything else
// is an additional verification method.
const (
	KeyTypeRSA     = "RSASSA-PKCS1-v1_5"
	KeyTypeEd25519 = "Ed25519"
)

// KeyTypes lists the supported algorithms, legacy first. Order matters.
var KeyTypes = []string{KeyTypeRSA, KeyTypeEd25519}

// Key is one half-pair of persisted key material, JWK-encoded.
type Key struct {
	UserId     int64
	Type       string
	PrivateKey string
	PublicKey  string
}

// FollowerRecipient is the reduction of a follower actor to exactly the
// fields a delivery target needs.
type FollowerRecipient struct {
	URI            string
	InboxURL       string
	SharedInboxURL string
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
