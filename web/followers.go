package web

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
)

// GetFollowersCollection serves the followers collection of a local
// account. Without a cursor it answers with the collection summary
// (declared size plus a link to the first page); with one it returns
// the page below that cursor. Items carry only what a remote delivery
// target needs.
func GetFollowersCollection(database *db.DB, conf *util.AppConfig, username string, cursorStr string) (error, string) {
	err, _ := activitypub.ResolveLocalActor(database, username)
	if err != nil {
		return err, "{}"
	}

	host := conf.Conf.Domain
	collectionIRI := activitypub.FollowersIRI(host, username)

	count, err := activitypub.CountFollowers(database, username)
	if err != nil {
		return err, "{}"
	}

	if cursorStr == "" {
		doc := map[string]interface{}{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         collectionIRI,
			"type":       "OrderedCollection",
			"totalItems": count,
			"first":      fmt.Sprintf("%s?cursor=0", collectionIRI),
		}
		buf, err := json.Marshal(doc)
		if err != nil {
			return err, "{}"
		}
		return nil, string(buf)
	}

	cursor, err := strconv.ParseInt(cursorStr, 10, 64)
	if err != nil {
		return err, "{}"
	}

	page, err := activitypub.ListFollowers(database, username, cursor)
	if err != nil {
		return err, "{}"
	}

	items := make([]map[string]interface{}, 0, len(page.Items))
	for _, follower := range page.Items {
		item := map[string]interface{}{
			"id":    follower.URI,
			"inbox": follower.InboxURL,
		}
		if follower.SharedInboxURL != "" {
			item["endpoints"] = map[string]interface{}{
				"sharedInbox": follower.SharedInboxURL,
			}
		}
		items = append(items, item)
	}

	doc := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?cursor=%s", collectionIRI, cursorStr),
		"type":         "OrderedCollectionPage",
		"partOf":       collectionIRI,
		"totalItems":   count,
		"orderedItems": items,
	}
	if page.NextCursor > 0 {
		doc["next"] = fmt.Sprintf("%s?cursor=%d", collectionIRI, page.NextCursor)
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(buf)
}
