package activitypub

import (
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// setupTestDB opens a throwaway on-disk database for testing
func setupTestDB(t *testing.T) *db.DB {
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	return database
}

// createTestAccount creates the local user with its actor row
func createTestAccount(t *testing.T, database *db.DB, username string) {
	actor := &domain.Actor{
		URI:            ActorIRI("pico.example", username),
		Handle:         fmt.Sprintf("@%s@pico.example", username),
		Name:           username,
		InboxURL:       InboxIRI("pico.example", username),
		SharedInboxURL: InboxIRI("pico.example", ""),
		URL:            ActorIRI("pico.example", username),
	}
	if err := database.CreateAccount(username, actor); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

// testConf builds a config pointing at the test domain
func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Domain = "pico.example"
	return conf
}

func TestGetOrCreateKeyPairs(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	pairs, err := GetOrCreateKeyPairs(database, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateKeyPairs failed: %v", err)
	}

	if len(pairs) != 2 {
		t.Fatalf("Expected 2 key pairs, got %d", len(pairs))
	}

	// Legacy RSA comes first, Ed25519 second
	if pairs[0].Type != domain.KeyTypeRSA {
		t.Errorf("Expected first pair type %s, got %s", domain.KeyTypeRSA, pairs[0].Type)
	}
	if pairs[1].Type != domain.KeyTypeEd25519 {
		t.Errorf("Expected second pair type %s, got %s", domain.KeyTypeEd25519, pairs[1].Type)
	}

	if _, ok := pairs[0].Private.(*rsa.PrivateKey); !ok {
		t.Error("Expected an RSA private key")
	}
	if _, ok := pairs[1].Private.(ed25519.PrivateKey); !ok {
		t.Error("Expected an Ed25519 private key")
	}
}

func TestGetOrCreateKeyPairsStable(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	first, err := GetOrCreateKeyPairs(database, "alice")
	if err != nil {
		t.Fatalf("First GetOrCreateKeyPairs failed: %v", err)
	}

	// Every later call must return the same persisted material
	second, err := GetOrCreateKeyPairs(database, "alice")
	if err != nil {
		t.Fatalf("Second GetOrCreateKeyPairs failed: %v", err)
	}

	for i := range first {
		if first[i].PrivateJWK != second[i].PrivateJWK {
			t.Errorf("Private JWK of %s changed between calls", first[i].Type)
		}
		if first[i].PublicJWK != second[i].PublicJWK {
			t.Errorf("Public JWK of %s changed between calls", first[i].Type)
		}
	}
}

func TestGetOrCreateKeyPairsUnknownUser(t *testing.T) {
	database := setupTestDB(t)

	_, err := GetOrCreateKeyPairs(database, "nobody")
	if err == nil {
		t.Error("Expected error for unknown user")
	}
}

func TestGetOrCreateKeyPairsCorruptMaterial(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	// Corrupt stored material must surface as a hard error, never as a
	// silently regenerated key
	corrupt := &domain.Key{
		UserId:     1,
		Type:       domain.KeyTypeRSA,
		PrivateKey: "not json",
		PublicKey:  "not json",
	}
	if err := database.InsertKeyIfAbsent(corrupt); err != nil {
		t.Fatalf("InsertKeyIfAbsent failed: %v", err)
	}

	_, err := GetOrCreateKeyPairs(database, "alice")
	if err == nil {
		t.Error("Expected error for corrupt key material")
	}
}

func TestPublicKeyPEM(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	pairs, err := GetOrCreateKeyPairs(database, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateKeyPairs failed: %v", err)
	}

	pem, err := PublicKeyPEM(pairs[0].Public)
	if err != nil {
		t.Fatalf("PublicKeyPEM failed: %v", err)
	}

	// The PEM half must parse back into the same kind of key
	parsed, err := ParsePublicKey(pem)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if parsed.N.Cmp(pairs[0].Public.(*rsa.PublicKey).N) != 0 {
		t.Error("PEM round trip changed the key")
	}
}

func TestSigningKey(t *testing.T) {
	database := setupTestDB(t)
	createTestAccount(t, database, "alice")

	pairs, err := GetOrCreateKeyPairs(database, "alice")
	if err != nil {
		t.Fatalf("GetOrCreateKeyPairs failed: %v", err)
	}

	key, err := SigningKey(pairs)
	if err != nil {
		t.Fatalf("SigningKey failed: %v", err)
	}
	if key == nil {
		t.Fatal("Expected an RSA signing key")
	}

	if _, err := SigningKey(nil); err == nil {
		t.Error("Expected error when no legacy pair exists")
	}
}
