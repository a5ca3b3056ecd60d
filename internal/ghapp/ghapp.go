// Package ghapp implements the GitHub-App integration surface (4.7):
// installation-token exchange with LRU/TTL caching, installation
// lookup with negative caching, and webhook signature verification.
package ghapp

import (
	"context"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenSafetyMargin = 5 * time.Minute
	tokenCacheCap     = 512
	tokenIdleEvict    = 24 * time.Hour
	lookupNegativeTTL = 1 * time.Hour
)

// Token is a short-lived installation access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Client exchanges a GitHub App's private key for installation access
// tokens and verifies inbound webhook signatures.
type Client struct {
	AppID      string
	PrivateKey *rsa.PrivateKey
	BaseURL    string // defaults to https://api.github.com
	HTTPClient *http.Client

	mu         sync.Mutex
	tokens     map[string]*cachedToken
	lookups    map[string]*cachedLookup
}

type cachedToken struct {
	token      Token
	lastUsedAt time.Time
}

type cachedLookup struct {
	installationID string
	found          bool
	cachedAt       time.Time
}

// NewClient parses a PEM-encoded RSA private key and returns a Client
// ready to exchange installation tokens.
func NewClient(appID string, pemBytes []byte, baseURL string) (*Client, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("ghapp: no PEM block found in private key")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		keyAny, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("ghapp: parsing private key: %w", err)
		}
		rsaKey, ok := keyAny.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("ghapp: private key is not RSA")
		}
		key = rsaKey
	}
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		AppID:      appID,
		PrivateKey: key,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     map[string]*cachedToken{},
		lookups:    map[string]*cachedLookup{},
	}, nil
}

// appJWT builds a short-lived App JWT (RS256) per GitHub's App
// authentication flow: iat slightly in the past to tolerate clock
// skew, exp 9 minutes out (GitHub's hard cap is 10), iss = App ID.
func (c *Client) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-30 * time.Second).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": c.AppID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(c.PrivateKey)
}

// GetInstallationToken returns a cached token for installationID if
// still valid (minus the 5-minute safety margin), otherwise exchanges
// the App JWT for a fresh one at
// POST /app/installations/{id}/access_tokens.
func (c *Client) GetInstallationToken(ctx context.Context, installationID string) (Token, error) {
	c.mu.Lock()
	c.evictIdleLocked()
	if cached, ok := c.tokens[installationID]; ok && time.Now().Before(cached.token.ExpiresAt.Add(-tokenSafetyMargin)) {
		cached.lastUsedAt = time.Now()
		tok := cached.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	jwtStr, err := c.appJWT()
	if err != nil {
		return Token{}, fmt.Errorf("ghapp: signing app jwt: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", c.BaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtStr)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("ghapp: exchanging installation token: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return Token{}, fmt.Errorf("ghapp: installation token exchange returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Token{}, fmt.Errorf("ghapp: decoding token response: %w", err)
	}

	tok := Token{Value: payload.Token, ExpiresAt: payload.ExpiresAt}

	c.mu.Lock()
	c.tokens[installationID] = &cachedToken{token: tok, lastUsedAt: time.Now()}
	c.evictLRULocked()
	c.mu.Unlock()

	return tok, nil
}

// evictIdleLocked drops entries untouched for longer than tokenIdleEvict.
// Caller must hold c.mu.
func (c *Client) evictIdleLocked() {
	cutoff := time.Now().Add(-tokenIdleEvict)
	for id, e := range c.tokens {
		if e.lastUsedAt.Before(cutoff) {
			delete(c.tokens, id)
		}
	}
}

// evictLRULocked caps the token cache at tokenCacheCap entries,
// dropping the least-recently-used ones. Caller must hold c.mu.
func (c *Client) evictLRULocked() {
	if len(c.tokens) <= tokenCacheCap {
		return
	}
	oldestID, oldestAt := "", time.Now()
	for len(c.tokens) > tokenCacheCap {
		for id, e := range c.tokens {
			if e.lastUsedAt.Before(oldestAt) || oldestID == "" {
				oldestID, oldestAt = id, e.lastUsedAt
			}
		}
		delete(c.tokens, oldestID)
		oldestID = ""
	}
}

// LookupInstallation resolves (owner, repo) to an installation id via
// GET /repos/{owner}/{repo}/installation, with 1-hour negative caching
// for not-found results.
func (c *Client) LookupInstallation(ctx context.Context, owner, repo string) (string, bool, error) {
	key := owner + "/" + repo

	c.mu.Lock()
	if cached, ok := c.lookups[key]; ok && time.Since(cached.cachedAt) < lookupNegativeTTL {
		id, found := cached.installationID, cached.found
		c.mu.Unlock()
		return id, found, nil
	}
	c.mu.Unlock()

	jwtStr, err := c.appJWT()
	if err != nil {
		return "", false, fmt.Errorf("ghapp: signing app jwt: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/installation", c.BaseURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+jwtStr)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("ghapp: looking up installation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.mu.Lock()
		c.lookups[key] = &cachedLookup{cachedAt: time.Now()}
		c.mu.Unlock()
		return "", false, nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("ghapp: installation lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false, fmt.Errorf("ghapp: decoding installation lookup: %w", err)
	}

	id := fmt.Sprintf("%d", payload.ID)
	c.mu.Lock()
	c.lookups[key] = &cachedLookup{installationID: id, found: true, cachedAt: time.Now()}
	c.mu.Unlock()
	return id, true, nil
}

// Clear empties both caches; tests must call this to avoid leaking
// state across runs (5 "Global mutable caches").
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = map[string]*cachedToken{}
	c.lookups = map[string]*cachedLookup{}
}

// VerifyWebhookSignature checks headerValue (GitHub's
// "sha256=<hex>" X-Hub-Signature-256 format) against an HMAC-SHA256 of
// payload computed with secret, using a constant-time comparison.
func VerifyWebhookSignature(payload []byte, headerValue, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(headerValue, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(headerValue, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	got := mac.Sum(nil)

	return hmac.Equal(got, want)
}
