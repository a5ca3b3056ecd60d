// Package auth resolves an HTTP or stdio caller's credentials into a
// CallerContext the dispatcher and query layer can scope requests by.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
)

// Record is one provisioned API key, as looked up by KeyID. SecretHash
// is the hex-encoded SHA-256 of the key's secret component; the raw
// secret is never stored.
type Record struct {
	KeyID      string
	OwnerScope string
	Tier       string
	SecretHash string
}

// KeyStore resolves a key id to its Record.
type KeyStore interface {
	Lookup(ctx context.Context, keyID string) (Record, bool, error)
}

// ParseBearer splits a "Bearer kota_<tier>_<key_id>_<secret>" header
// value into its tier, key id, and secret components.
func ParseBearer(header string) (tier, keyID, secret string, err error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "", "", fmt.Errorf("missing Bearer prefix")
	}
	token := strings.TrimPrefix(header, prefix)

	const keyPrefix = "kota_"
	if !strings.HasPrefix(token, keyPrefix) {
		return "", "", "", fmt.Errorf("missing kota_ key prefix")
	}
	parts := strings.SplitN(strings.TrimPrefix(token, keyPrefix), "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed key: want kota_<tier>_<key_id>_<secret>")
	}
	return parts[0], parts[1], parts[2], nil
}

// hashSecret returns the hex-encoded SHA-256 of secret, the form
// Records store instead of the raw secret.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// AuthenticateAPIKey validates an Authorization header of the form
// "Bearer kota_<tier>_<key_id>_<secret>" against store, in constant
// time relative to the secret's length (P7): missing header yields
// AuthMissingKey, a malformed one AuthInvalidHeader, and a well-formed
// but rejected one AuthInvalidKey — never a bare parse error.
func AuthenticateAPIKey(ctx context.Context, store KeyStore, header string) (mcp.CallerContext, error) {
	if header == "" {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthMissingKey, "missing Authorization header")
	}

	tier, keyID, secret, err := ParseBearer(header)
	if err != nil {
		return mcp.CallerContext{}, kotaerr.Wrap(kotaerr.AuthInvalidHeader, "malformed Authorization header", err)
	}

	record, found, err := store.Lookup(ctx, keyID)
	if err != nil {
		return mcp.CallerContext{}, kotaerr.Wrap(kotaerr.Internal, "looking up API key", err)
	}
	// A constant-time comparison still runs against a placeholder hash
	// of the same length when the key id is unknown, so a forged key_id
	// takes the same time as a forged secret under a real key_id.
	wantHash := record.SecretHash
	gotHash := hashSecret(secret)
	if !found {
		wantHash = strings.Repeat("0", len(gotHash))
	}
	match := subtle.ConstantTimeCompare([]byte(wantHash), []byte(gotHash)) == 1
	if !found || !match || record.Tier != tier {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthInvalidKey, "rejected API key")
	}

	return mcp.CallerContext{OwnerScope: record.OwnerScope, KeyID: record.KeyID, Tier: record.Tier}, nil
}
