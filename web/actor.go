package web

import (
	"encoding/json"

	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/domain"
	"github.com/picofed/picofed/util"
)

// GetActor renders the actor document of a local account. The legacy
// RSA key is the primary publicKey block; every pair, including the
// Ed25519 one, is listed again under assertionMethod so either key can
// verify. Key trouble is a hard error: an actor document without its
// keys would break every follower's signature checks.
func GetActor(database *db.DB, conf *util.AppConfig, username string) (error, string) {
	err, actor := activitypub.ResolveLocalActor(database, username)
	if err != nil {
		return err, "{}"
	}

	pairs, err := activitypub.GetOrCreateKeyPairs(database, username)
	if err != nil {
		return err, "{}"
	}

	host := conf.Conf.Domain
	actorIRI := activitypub.ActorIRI(host, username)

	legacyPEM, err := activitypub.PublicKeyPEM(pairs[0].Public)
	if err != nil {
		return err, "{}"
	}

	var assertionMethods []map[string]interface{}
	for _, pair := range pairs {
		jwkMap, err := activitypub.PublicJWKMap(pair)
		if err != nil {
			return err, "{}"
		}
		assertionMethods = append(assertionMethods, map[string]interface{}{
			"id":           activitypub.KeyIRI(host, username, pair.Type),
			"type":         "JsonWebKey2020",
			"controller":   actorIRI,
			"publicKeyJwk": jwkMap,
		})
	}

	displayName := actor.Name
	if displayName == "" {
		displayName = username
	}

	doc := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                        actorIRI,
		"type":                      "Person",
		"preferredUsername":         username,
		"name":                      displayName,
		"inbox":                     activitypub.InboxIRI(host, username),
		"followers":                 activitypub.FollowersIRI(host, username),
		"url":                       actorIRI,
		"manuallyApprovesFollowers": false,
		"discoverable":              true,
		"endpoints": map[string]interface{}{
			"sharedInbox": activitypub.InboxIRI(host, ""),
		},
		"publicKey": map[string]interface{}{
			"id":           activitypub.KeyIRI(host, username, domain.KeyTypeRSA),
			"owner":        actorIRI,
			"publicKeyPem": legacyPEM,
		},
		"assertionMethod": assertionMethods,
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(buf)
}
