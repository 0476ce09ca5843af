package web

import (
	"bytes"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
	"golang.org/x/time/rate"
)

//go:embed templates/*
var embeddedTemplates embed.FS

// Router wires every HTTP route of the node onto one gin engine. The
// caller decides how to serve it (plain HTTP or autocert TLS).
func Router(conf *util.AppConfig, database *db.DB, deliver activitypub.Deliverer) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// Templates are embedded so the binary can run from anywhere,
	// not just a checkout of the repo.
	g.SetHTMLTemplate(template.Must(template.ParseFS(embeddedTemplates, "templates/*")))

	inbox := &activitypub.Inbox{DB: database, Conf: conf, Deliver: deliver}

	// Web UI routes
	g.GET("/", func(c *gin.Context) {
		HandleIndex(c, database)
	})

	g.GET("/setup", func(c *gin.Context) {
		HandleSetupForm(c, database)
	})

	g.POST("/setup", func(c *gin.Context) {
		HandleSetup(c, database, conf)
	})

	g.POST("/posts", func(c *gin.Context) {
		HandleCreatePost(c, database, conf, deliver)
	})

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		err, user := database.ReadAnyUser()
		if err != nil || user == nil {
			c.Render(404, render.String{Format: ""})
			return
		}
		rss, err := GetRSS(database, conf, user.Username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
	apLimiter := NewRateLimiter(rate.Limit(5), 10)

	// Max 1MB request body size for ActivityPub activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	// Actor document or HTML profile, depending on what the client asks for
	g.GET("/users/:username", func(c *gin.Context) {
		username := c.Param("username")

		if wantsActivityJSON(c) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, actor := GetActor(database, conf, username)
			switch {
			case err == nil:
				c.Render(200, render.String{Format: actor})
			case errors.Is(err, sql.ErrNoRows):
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
			default:
				// Key material or storage trouble: the actor is not
				// gone, so never answer 404 here.
				log.Printf("Actor: Failed to render %s: %v", username, err)
				c.Render(500, render.String{Format: "{}"})
			}
			return
		}

		HandleProfile(c, database, conf, username)
	})

	g.GET("/users/:username/followers", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")
		err, collection := GetFollowersCollection(database, conf, c.Param("username"), c.Query("cursor"))
		var numErr *strconv.NumError
		switch {
		case err == nil:
			c.Render(200, render.String{Format: collection})
		case errors.Is(err, sql.ErrNoRows):
			c.Render(404, render.String{Format: "{}"})
		case errors.As(err, &numErr):
			c.Render(400, render.String{Format: "{}"})
		default:
			log.Printf("Followers: Failed to render %s: %v", c.Param("username"), err)
			c.Render(500, render.String{Format: "{}"})
		}
	})

	g.GET("/users/:username/posts/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/activity+json; charset=utf-8")

		postId, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(404, gin.H{"error": "Invalid post ID"})
			return
		}

		object, err := activitypub.DispatchPost(database, conf, c.Param("username"), postId)
		if err != nil {
			c.JSON(404, gin.H{"error": "Post not found"})
			return
		}
		c.JSON(200, object)
	})

	g.POST("/users/:username/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		username := c.Param("username")
		log.Printf("POST /users/%s/inbox", username)
		inbox.HandleInbox(c.Writer, c.Request, username)
	})

	g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
		log.Println("POST /inbox (shared inbox)")
		username, body, ok := routeSharedInbox(c, conf, database)
		if !ok {
			return
		}

		req := c.Request.Clone(c.Request.Context())
		req.Body = io.NopCloser(bytes.NewReader(body))
		inbox.HandleInbox(c.Writer, req, username)
	})

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		c.Header("Content-Type", "application/jrd+json; charset=utf-8")

		resource := c.Query("resource")
		if resource == "" || !strings.HasPrefix(resource, "acct:") {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
			return
		}
		resource = strings.TrimPrefix(resource, "acct:")
		resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.Domain))
		err, resp := GetWebfinger(database, conf, resource)
		if err != nil {
			c.Render(404, render.String{Format: GetWebFingerNotFound()})
		} else {
			c.Render(200, render.String{Format: resp})
		}
	})

	return g
}

func wantsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/activity+json") ||
		strings.Contains(accept, "application/ld+json")
}

// routeSharedInbox resolves which local inbox a shared-inbox delivery is
// meant for. Follows name their target in the object field; everything
// else falls through to the node's single account.
func routeSharedInbox(c *gin.Context, conf *util.AppConfig, database *db.DB) (string, []byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Shared inbox: Failed to read body: %v", err)
		c.Status(400)
		return "", nil, false
	}

	var activity map[string]interface{}
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Shared inbox: Failed to parse activity: %v", err)
		c.Status(400)
		return "", nil, false
	}

	if objStr, ok := activity["object"].(string); ok {
		if username, ok := activitypub.ParseActorIRI(conf.Conf.Domain, objStr); ok {
			return username, body, true
		}
	}

	err, user := database.ReadAnyUser()
	if err != nil || user == nil {
		log.Printf("Shared inbox: No local account, dropping activity type %v", activity["type"])
		c.Status(202)
		return "", nil, false
	}
	return user.Username, body, true
}
