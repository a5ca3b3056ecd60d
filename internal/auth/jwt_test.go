package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

func signedToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestAuthenticateAcceptsValidJWT(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		OwnerScope:       "org-a",
		KeyID:            "jwt-k1",
		Tier:             "pro",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	header := "Bearer " + signedToken(t, secret, claims)

	caller, err := Authenticate(context.Background(), memKeyStore{}, secret, header)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if caller.OwnerScope != "org-a" || caller.KeyID != "jwt-k1" || caller.Tier != "pro" {
		t.Fatalf("caller = %+v", caller)
	}
}

func TestAuthenticateRejectsJWTMissingClaims(t *testing.T) {
	secret := []byte("test-secret")
	header := "Bearer " + signedToken(t, secret, Claims{Tier: "pro"})

	_, err := Authenticate(context.Background(), memKeyStore{}, secret, header)
	assertCode(t, err, kotaerr.AuthInvalidKey)
}

func TestAuthenticateRejectsJWTSignedWithWrongSecret(t *testing.T) {
	claims := Claims{OwnerScope: "org-a", KeyID: "k1", Tier: "pro"}
	header := "Bearer " + signedToken(t, []byte("wrong-secret"), claims)

	_, err := Authenticate(context.Background(), memKeyStore{}, []byte("real-secret"), header)
	assertCode(t, err, kotaerr.AuthInvalidKey)
}

func TestAuthenticateStillRoutesAPIKeysThroughKeyStore(t *testing.T) {
	store := memKeyStore{
		"k1": {KeyID: "k1", OwnerScope: "org-a", Tier: "pro", SecretHash: hashSecret("s3cret")},
	}
	caller, err := Authenticate(context.Background(), store, []byte("unused-when-api-key"), "Bearer kota_pro_k1_s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if caller.KeyID != "k1" {
		t.Fatalf("caller = %+v", caller)
	}
}

func TestAuthenticateWithoutJWTSecretRejectsNonAPIKeyToken(t *testing.T) {
	_, err := Authenticate(context.Background(), memKeyStore{}, nil, "Bearer some.jwt.token")
	assertCode(t, err, kotaerr.AuthInvalidHeader)
}
