package domain

import (
	"fmt"
	"time"
)

// Post is a locally authored note, immutable once dispatched.
type Post struct {
	Id      int64
	ActorId int64
	Content string // sanitized HTML
	Created time.Time
}

func (p *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tActorId: %d \n\tCreated: %s", p.Id, p.ActorId, p.Created)
}
