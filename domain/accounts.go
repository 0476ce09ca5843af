package domain

import (
	"fmt"
	"time"
)

// User is the single local account of this node. It is created once via
// the setup flow and never mutated afterwards.
type User struct {
	Id       int64
	Username string
}

// Actor is a federation-addressable identity: the local user's public
// face (UserId set) or a cached remote actor (UserId nil).
type Actor struct {
	Id             int64
	UserId         *int64
	URI            string
	Handle         string
	Name           string
	InboxURL       string
	SharedInboxURL string
	URL            string
	Created        time.Time
}

func (a *Actor) IsLocal() bool {
	return a.UserId != nil
}

func (a *Actor) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tURI: %s \n\tHandle: %s \n\tInbox: %s", a.Id, a.URI, a.Handle, a.InboxURL)
}
