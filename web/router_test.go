package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/picofed/picofed/domain"
)

// discardDeliverer satisfies the deliverer interface for router tests
type discardDeliverer struct{}

func (d *discardDeliverer) Deliver(activityJSON string, inboxURI string) error {
	return nil
}

func TestRouterServesSetupPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)

	// The test binary runs from the package directory, not the repo
	// root, so this also proves the templates load independent of the
	// working directory
	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/setup", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<form") {
		t.Error("Expected setup page to contain a form")
	}
}

func TestRouterServesProfilePage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/users/alice", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "@alice@pico.example") {
		t.Error("Expected profile page to contain the handle")
	}
}

func TestRouterActorNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/users/nobody", nil)
	req.Header.Set("Accept", "application/activity+json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown actor, got %d", w.Code)
	}
}

func TestRouterActorCorruptKeyMaterial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	// A stored key that cannot be decoded must not look like a deleted
	// actor to remote peers
	corrupt := &domain.Key{
		UserId:     1,
		Type:       domain.KeyTypeRSA,
		PrivateKey: "not json",
		PublicKey:  "not json",
	}
	if err := database.InsertKeyIfAbsent(corrupt); err != nil {
		t.Fatalf("InsertKeyIfAbsent failed: %v", err)
	}

	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/users/alice", nil)
	req.Header.Set("Accept", "application/activity+json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for corrupt key material, got %d", w.Code)
	}
}

func TestRouterFollowersUnknownUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/users/nobody/followers", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", w.Code)
	}
}

func TestRouterFollowersBadCursor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	router := Router(testConf(), database, &discardDeliverer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/users/alice/followers?cursor=abc", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed cursor, got %d", w.Code)
	}
}
