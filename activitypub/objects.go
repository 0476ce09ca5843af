package activitypub

import (
	"fmt"
	"time"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// NoteObject renders a post as its federation Note representation. The
// id is the post's canonical IRI, the primary recipient is the public
// collection, the secondary the actor's followers collection, so the
// addressing of a dereferenced post never depends on who asked.
func NoteObject(host string, username string, post *domain.Post) map[string]interface{} {
	postIRI := PostIRI(host, username, post.Id)
	return map[string]interface{}{
		"@context":     activityStreamsContext,
		"id":           postIRI,
		"type":         "Note",
		"attributedTo": ActorIRI(host, username),
		"content":      post.Content,
		"mediaType":    "text/html",
		"published":    post.Created.UTC().Format(time.RFC3339),
		"url":          postIRI,
		"to":           []string{PublicCollection},
		"cc":           []string{FollowersIRI(host, username)},
	}
}

// DispatchPost resolves a post owned by the named local actor into its
// Note representation. Unknown id or foreign ownership is a not-found,
// reported through the wrapped sql.ErrNoRows.
func DispatchPost(database *db.DB, conf *util.AppConfig, username string, postId int64) (map[string]interface{}, error) {
	err, post := database.ReadPost(username, postId)
	if err != nil {
		return nil, fmt.Errorf("post %d of %q: %w", postId, username, err)
	}
	return NoteObject(conf.Conf.Domain, username, post), nil
}
