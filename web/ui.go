package web

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

type ProfilePageData struct {
	Title     string
	Host      string
	Handle    string
	Name      string
	Followers int
	Posts     []PostView
}

type SetupPageData struct {
	Title string
	Error string
}

type PostView struct {
	Message string
	TimeAgo string
}

func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else if duration < 30*24*time.Hour {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	} else {
		return t.Format("Jan 2, 2006")
	}
}

// HandleIndex sends visitors to the local profile, or to setup while the
// node has no account yet.
func HandleIndex(c *gin.Context, database *db.DB) {
	err, user := database.ReadAnyUser()
	if err != nil || user == nil {
		c.Redirect(302, "/setup")
		return
	}
	c.Redirect(302, fmt.Sprintf("/users/%s", user.Username))
}

func HandleSetupForm(c *gin.Context, database *db.DB) {
	err, user := database.ReadAnyUser()
	if err == nil && user != nil {
		c.Redirect(302, fmt.Sprintf("/users/%s", user.Username))
		return
	}
	c.HTML(200, "setup.html", SetupPageData{Title: "Setup"})
}

// HandleSetup creates the node's single account. Once an account exists
// the form becomes a redirect and never mutates anything.
func HandleSetup(c *gin.Context, database *db.DB, conf *util.AppConfig) {
	err, existing := database.ReadAnyUser()
	if err == nil && existing != nil {
		c.Redirect(302, fmt.Sprintf("/users/%s", existing.Username))
		return
	}

	username := strings.TrimSpace(c.PostForm("username"))
	name := strings.TrimSpace(c.PostForm("name"))

	if !util.ValidUsername(username) {
		c.HTML(400, "setup.html", SetupPageData{
			Title: "Setup",
			Error: "Username must be 1-50 characters of a-z, 0-9, - or _",
		})
		return
	}
	if name == "" {
		name = username
	}

	host := conf.Conf.Domain
	actor := &domain.Actor{
		URI:            activitypub.ActorIRI(host, username),
		Handle:         util.Handle(username, host),
		Name:           util.NormalizeInput(name),
		InboxURL:       activitypub.InboxIRI(host, username),
		SharedInboxURL: activitypub.InboxIRI(host, ""),
		URL:            activitypub.ActorIRI(host, username),
	}

	if err := database.CreateAccount(username, actor); err != nil {
		log.Printf("Setup: could not create account %q: %v", username, err)
		c.HTML(500, "setup.html", SetupPageData{
			Title: "Setup",
			Error: "Could not create the account",
		})
		return
	}

	log.Printf("Setup: created account %s", actor.Handle)
	c.Redirect(302, fmt.Sprintf("/users/%s", username))
}

func HandleProfile(c *gin.Context, database *db.DB, conf *util.AppConfig, username string) {
	err, actor := activitypub.ResolveLocalActor(database, username)
	if err != nil {
		c.HTML(404, "profile.html", ProfilePageData{Title: "Not Found"})
		return
	}

	err, posts := database.ReadPostsByUsername(username, 50)
	if err != nil {
		log.Printf("Profile: could not read posts of %s: %v", username, err)
		c.HTML(500, "profile.html", ProfilePageData{Title: "Error"})
		return
	}

	count, err := activitypub.CountFollowers(database, username)
	if err != nil {
		log.Printf("Profile: could not count followers of %s: %v", username, err)
		count = 0
	}

	views := make([]PostView, 0)
	if posts != nil {
		for _, post := range *posts {
			views = append(views, PostView{
				Message: post.Content,
				TimeAgo: formatTimeAgo(post.Created),
			})
		}
	}

	c.HTML(200, "profile.html", ProfilePageData{
		Title:     actor.Handle,
		Host:      conf.Conf.Domain,
		Handle:    actor.Handle,
		Name:      actor.Name,
		Followers: count,
		Posts:     views,
	})
}

// HandleCreatePost stores a post and fans it out to every follower inbox.
func HandleCreatePost(c *gin.Context, database *db.DB, conf *util.AppConfig, deliver activitypub.Deliverer) {
	err, user := database.ReadAnyUser()
	if err != nil || user == nil {
		c.Redirect(302, "/setup")
		return
	}

	content := util.NormalizeInput(strings.TrimSpace(c.PostForm("content")))
	if content == "" {
		c.Redirect(302, fmt.Sprintf("/users/%s", user.Username))
		return
	}

	err, actor := activitypub.ResolveLocalActor(database, user.Username)
	if err != nil {
		log.Printf("Post: no local actor for %s: %v", user.Username, err)
		c.String(500, "could not resolve local actor")
		return
	}

	err, post := database.CreatePost(actor.Id, content)
	if err != nil {
		log.Printf("Post: could not store post: %v", err)
		c.String(500, "could not store post")
		return
	}

	if err := activitypub.FanOutPost(database, conf, deliver, user.Username, post); err != nil {
		log.Printf("Post: fan-out of post %d failed: %v", post.Id, err)
	}

	c.Redirect(302, fmt.Sprintf("/users/%s", user.Username))
}
