package activitypub

import (
	"fmt"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
)

const followersPageSize = 50

// FollowersPage is one page of follower recipients, newest first.
// NextCursor is 0 once the collection is exhausted.
type FollowersPage struct {
	Items      []domain.FollowerRecipient
	NextCursor int64
}

// ListFollowers pages through the followers of the named local account
// in reverse-chronological follow order. Cursor 0 means "from the
// newest edge"; otherwise it is the NextCursor of the previous page.
// Cursoring on the edge id keeps pages stable while new follows arrive.
func ListFollowers(database *db.DB, username string, cursor int64) (*FollowersPage, error) {
	if cursor <= 0 {
		cursor = db.MaxCursor
	}

	err, edges := database.ReadFollowers(username, cursor, followersPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers of %q: %w", username, err)
	}

	page := &FollowersPage{}
	if edges == nil {
		return page, nil
	}
	for _, edge := range *edges {
		page.Items = append(page.Items, edge.Recipient)
	}
	if len(*edges) == followersPageSize {
		page.NextCursor = (*edges)[len(*edges)-1].EdgeId
	}
	return page, nil
}

// CountFollowers returns the current number of follow edges pointing at
// the named local account, straight from committed state.
func CountFollowers(database *db.DB, username string) (int, error) {
	err, count := database.CountFollowers(username)
	if err != nil {
		return 0, fmt.Errorf("failed to count followers of %q: %w", username, err)
	}
	return count, nil
}
