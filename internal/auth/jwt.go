package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
)

// Claims is the custom claim set a caller-issued JWT must carry to
// resolve to a CallerContext.
type Claims struct {
	OwnerScope string `json:"owner_scope"`
	KeyID      string `json:"key_id"`
	Tier       string `json:"tier"`
	jwt.RegisteredClaims
}

// authenticateJWT validates a bearer token as an HS256 JWT signed
// with secret and extracts its CallerContext. A token missing any of
// owner_scope/key_id/tier is rejected as AuthInvalidKey rather than
// accepted with a partial context.
func authenticateJWT(secret []byte, token string) (mcp.CallerContext, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthInvalidKey, "rejected JWT")
	}
	if claims.OwnerScope == "" || claims.KeyID == "" || claims.Tier == "" {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthInvalidKey, "JWT missing owner_scope/key_id/tier claims")
	}
	return mcp.CallerContext{OwnerScope: claims.OwnerScope, KeyID: claims.KeyID, Tier: claims.Tier}, nil
}

// Authenticate resolves an Authorization header to a CallerContext,
// accepting either the "Bearer kota_<tier>_<key_id>_<secret>" API-key
// form or a "Bearer <jwt>" form, per §4.6 item 5. jwtSecret may be nil
// if the deployment does not issue JWTs, in which case any non-API-key
// token is rejected.
func Authenticate(ctx context.Context, store KeyStore, jwtSecret []byte, header string) (mcp.CallerContext, error) {
	if header == "" {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthMissingKey, "missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthInvalidHeader, "missing Bearer prefix")
	}
	token := strings.TrimPrefix(header, prefix)

	if strings.HasPrefix(token, "kota_") {
		return AuthenticateAPIKey(ctx, store, header)
	}
	if jwtSecret == nil {
		return mcp.CallerContext{}, kotaerr.New(kotaerr.AuthInvalidHeader, "JWT authentication is not configured")
	}
	return authenticateJWT(jwtSecret, token)
}
