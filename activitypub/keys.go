package activitypub

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
)

const rsaKeyBits = 2048

// KeyPair is one usable key pair of an account, with the exported JWK
// halves exactly as persisted.
type KeyPair struct {
	Type       string
	Private    crypto.PrivateKey
	Public     crypto.PublicKey
	PrivateJWK string
	PublicJWK  string
}

// GetOrCreateKeyPairs returns one key pair per supported algorithm for
// the named local account, legacy RSA first. Pairs missing from storage
// are generated and persisted; a concurrent first-time caller loses the
// insert race and loads whatever the winner stored, so both converge on
// the same material. Corrupt stored material is a hard error: dispatches
// that need the key must fail instead of serving without it.
func GetOrCreateKeyPairs(database *db.DB, username string) ([]KeyPair, error) {
	err, user := database.ReadUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("no local account %q: %w", username, err)
	}

	err, stored := database.ReadKeysByUserId(user.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys: %w", err)
	}

	pairs := make([]KeyPair, 0, len(domain.KeyTypes))
	for _, keyType := range domain.KeyTypes {
		key, ok := stored[keyType]
		if !ok {
			log.Printf("KeyVault: %s has no %s key, creating one", username, keyType)
			generated, err := generateKey(user.Id, keyType)
			if err != nil {
				return nil, err
			}
			if err := database.InsertKeyIfAbsent(generated); err != nil {
				return nil, fmt.Errorf("failed to persist %s key: %w", keyType, err)
			}
			// Re-read so a lost insert race still yields the winner's pair.
			err, persisted := database.ReadKey(user.Id, keyType)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read %s key: %w", keyType, err)
			}
			key = *persisted
		}

		pair, err := importPair(&key)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

func generateKey(userId int64, keyType string) (*domain.Key, error) {
	var private crypto.PrivateKey
	var public crypto.PublicKey

	switch keyType {
	case domain.KeyTypeRSA:
		rsaKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		private, public = rsaKey, &rsaKey.PublicKey
	case domain.KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate Ed25519 key: %w", err)
		}
		private, public = priv, pub
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}

	privateJWK, err := exportJWK(private)
	if err != nil {
		return nil, err
	}
	publicJWK, err := exportJWK(public)
	if err != nil {
		return nil, err
	}

	return &domain.Key{
		UserId:     userId,
		Type:       keyType,
		PrivateKey: privateJWK,
		PublicKey:  publicJWK,
	}, nil
}

// exportJWK serializes raw key material to its JWK form. JWK is the
// interchange contract: an export from any other implementation imports
// here and vice versa.
func exportJWK(raw interface{}) (string, error) {
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return "", fmt.Errorf("failed to build JWK: %w", err)
	}
	buf, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWK: %w", err)
	}
	return string(buf), nil
}

func importJWK(jwkStr string) (interface{}, error) {
	key, err := jwk.ParseKey([]byte(jwkStr))
	if err != nil {
		return nil, fmt.Errorf("malformed stored key material: %w", err)
	}
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("malformed stored key material: %w", err)
	}
	return raw, nil
}

func importPair(key *domain.Key) (KeyPair, error) {
	private, err := importJWK(key.PrivateKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%s private key: %w", key.Type, err)
	}
	public, err := importJWK(key.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%s public key: %w", key.Type, err)
	}
	return KeyPair{
		Type:       key.Type,
		Private:    private,
		Public:     public,
		PrivateJWK: key.PrivateKey,
		PublicJWK:  key.PublicKey,
	}, nil
}

// PublicKeyPEM renders a public key as PKIX PEM, the form the legacy
// publicKey block of the actor document carries.
func PublicKeyPEM(public crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	buf := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return string(buf), nil
}

// PublicJWKMap decodes the exported public JWK for embedding into JSON
// documents.
func PublicJWKMap(pair KeyPair) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(pair.PublicJWK), &m); err != nil {
		return nil, fmt.Errorf("malformed stored key material: %w", err)
	}
	return m, nil
}

// SigningKey returns the RSA private key of the legacy pair, the key
// outbound HTTP signatures are made with.
func SigningKey(pairs []KeyPair) (*rsa.PrivateKey, error) {
	for _, pair := range pairs {
		if pair.Type != domain.KeyTypeRSA {
			continue
		}
		rsaKey, ok := pair.Private.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("legacy key is not RSA")
		}
		return rsaKey, nil
	}
	return nil, fmt.Errorf("no legacy signing key")
}
