package activitypub

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/picofed/picofed/domain"
)

func TestNoteObject(t *testing.T) {
	created := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	post := &domain.Post{Id: 7, Content: "Hello", Created: created}

	note := NoteObject("pico.example", "alice", post)

	if note["type"] != "Note" {
		t.Errorf("Expected type Note, got %v", note["type"])
	}
	if note["id"] != "https://pico.example/users/alice/posts/7" {
		t.Errorf("Unexpected note id: %v", note["id"])
	}
	if note["attributedTo"] != "https://pico.example/users/alice" {
		t.Errorf("Unexpected attributedTo: %v", note["attributedTo"])
	}
	if note["published"] != "2026-05-04T12:30:00Z" {
		t.Errorf("Unexpected published timestamp: %v", note["published"])
	}

	// Public primary addressing, followers secondary
	to, ok := note["to"].([]string)
	if !ok || len(to) != 1 || to[0] != PublicCollection {
		t.Errorf("Expected to = [public collection], got %v", note["to"])
	}
	cc, ok := note["cc"].([]string)
	if !ok || len(cc) != 1 || cc[0] != "https://pico.example/users/alice/followers" {
		t.Errorf("Expected cc = [followers collection], got %v", note["cc"])
	}
}

func TestDispatchPost(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	err, local := database.ReadLocalActorByUsername("alice")
	if err != nil {
		t.Fatalf("ReadLocalActorByUsername failed: %v", err)
	}
	err, post := database.CreatePost(local.Id, "Hello")
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	note, err := DispatchPost(database, testConf(), "alice", post.Id)
	if err != nil {
		t.Fatalf("DispatchPost failed: %v", err)
	}
	if note["content"] != "Hello" {
		t.Errorf("Unexpected content: %v", note["content"])
	}
}

func TestDispatchPostNotFound(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	_, err := DispatchPost(database, testConf(), "alice", 999)
	if err == nil {
		t.Fatal("Expected error for unknown post")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected wrapped sql.ErrNoRows, got %v", err)
	}
}

func TestDispatchPostForeignOwner(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	err, local := database.ReadLocalActorByUsername("alice")
	if err != nil {
		t.Fatalf("ReadLocalActorByUsername failed: %v", err)
	}
	err, post := database.CreatePost(local.Id, "Mine")
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// A valid post id under the wrong username is a not-found
	_, err = DispatchPost(database, testConf(), "mallory", post.Id)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected wrapped sql.ErrNoRows, got %v", err)
	}
}
