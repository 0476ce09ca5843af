package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/feeds"
	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
)

// GetRSS renders the local account's posts as an RSS feed.
func GetRSS(database *db.DB, conf *util.AppConfig, username string) (string, error) {

	err, user := database.ReadUserByUsername(username)
	if err != nil {
		log.Printf("Could not resolve feed user %q: %v", username, err)
		return "", errors.New("error resolving feed user")
	}

	err, posts := database.ReadPostsByUsername(user.Username, 50)
	if err != nil {
		log.Printf("Could not get posts of %s: %v", user.Username, err)
		return "", errors.New("error retrieving posts")
	}

	host := conf.Conf.Domain
	email := fmt.Sprintf("%s@%s", user.Username, host)

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", util.Name, user.Username),
		Link:        &feeds.Link{Href: activitypub.ActorIRI(host, user.Username)},
		Description: fmt.Sprintf("posts of %s", util.Handle(user.Username, host)),
		Author:      &feeds.Author{Name: user.Username, Email: email},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	if posts != nil {
		for _, post := range *posts {
			feedItems = append(feedItems,
				&feeds.Item{
					Id:      activitypub.PostIRI(host, user.Username, post.Id),
					Title:   post.Created.Format("2006-01-02 15:04"),
					Link:    &feeds.Link{Href: activitypub.PostIRI(host, user.Username, post.Id)},
					Content: post.Content,
					Author:  &feeds.Author{Name: user.Username, Email: email},
					Created: post.Created,
				})
		}
	}

	feed.Items = feedItems
	return feed.ToRss()
}
