package auth

import (
	"context"
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

type memKeyStore map[string]Record

func (m memKeyStore) Lookup(_ context.Context, keyID string) (Record, bool, error) {
	record, ok := m[keyID]
	return record, ok, nil
}

func TestAuthenticateAPIKeyAcceptsKnownKey(t *testing.T) {
	store := memKeyStore{
		"k1": {KeyID: "k1", OwnerScope: "org-a", Tier: "pro", SecretHash: hashSecret("s3cret")},
	}

	caller, err := AuthenticateAPIKey(context.Background(), store, "Bearer kota_pro_k1_s3cret")
	if err != nil {
		t.Fatalf("AuthenticateAPIKey: %v", err)
	}
	if caller.OwnerScope != "org-a" || caller.KeyID != "k1" || caller.Tier != "pro" {
		t.Fatalf("caller = %+v", caller)
	}
}

func TestAuthenticateAPIKeyMissingHeaderIsAuthMissingKey(t *testing.T) {
	_, err := AuthenticateAPIKey(context.Background(), memKeyStore{}, "")
	assertCode(t, err, kotaerr.AuthMissingKey)
}

func TestAuthenticateAPIKeyMalformedHeaderIsAuthInvalidHeader(t *testing.T) {
	cases := []string{
		"kota_pro_k1_s3cret",
		"Bearer not-a-kota-key",
		"Bearer kota_pro_k1",
		"Bearer kota_pro__s3cret",
	}
	for _, header := range cases {
		_, err := AuthenticateAPIKey(context.Background(), memKeyStore{}, header)
		assertCode(t, err, kotaerr.AuthInvalidHeader)
	}
}

func TestAuthenticateAPIKeyWrongSecretIsAuthInvalidKey(t *testing.T) {
	store := memKeyStore{
		"k1": {KeyID: "k1", OwnerScope: "org-a", Tier: "pro", SecretHash: hashSecret("s3cret")},
	}
	_, err := AuthenticateAPIKey(context.Background(), store, "Bearer kota_pro_k1_wrong")
	assertCode(t, err, kotaerr.AuthInvalidKey)
}

func TestAuthenticateAPIKeyUnknownKeyIDIsAuthInvalidKey(t *testing.T) {
	_, err := AuthenticateAPIKey(context.Background(), memKeyStore{}, "Bearer kota_pro_ghost_s3cret")
	assertCode(t, err, kotaerr.AuthInvalidKey)
}

func TestAuthenticateAPIKeyTierMismatchIsAuthInvalidKey(t *testing.T) {
	store := memKeyStore{
		"k1": {KeyID: "k1", OwnerScope: "org-a", Tier: "pro", SecretHash: hashSecret("s3cret")},
	}
	_, err := AuthenticateAPIKey(context.Background(), store, "Bearer kota_free_k1_s3cret")
	assertCode(t, err, kotaerr.AuthInvalidKey)
}

func assertCode(t *testing.T, err error, want kotaerr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %v, got nil", want)
	}
	kerr, ok := kotaerr.As(err)
	if !ok {
		t.Fatalf("expected a kotaerr.Error, got %T: %v", err, err)
	}
	if kerr.Code != want {
		t.Fatalf("code = %v, want %v", kerr.Code, want)
	}
}
