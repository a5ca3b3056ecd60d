package httptransport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jayminwest/kotadb-sub013/internal/auth"
	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/jobs"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
	"github.com/jayminwest/kotadb-sub013/internal/ratelimit"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
)

func hashSecretForTest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

type memKeyStore map[string]auth.Record

func (m memKeyStore) Lookup(_ context.Context, keyID string) (auth.Record, bool, error) {
	record, ok := m[keyID]
	return record, ok, nil
}

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kotadb.sqlite3"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	keyStore := memKeyStore{
		"k1": {KeyID: "k1", OwnerScope: "org-a", Tier: "pro", SecretHash: hashSecretForTest("s3cret")},
	}
	dispatcher := mcp.NewDispatcher(mcp.Deps{}, "kotadb", "test")
	tracker := jobs.NewTracker(store)

	s := NewServer(store.DB(), dispatcher, tracker, store, store, keyStore)
	return s, store
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Authorization", "Bearer kota_pro_k1_s3cret")
	return req
}

func TestHealthIsPublicAndUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMCPRejectsMissingOrigin(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestMCPRejectsMissingProtocolVersion(t *testing.T) {
	s, _ := newTestServer(t)
	req := authedRequest(http.MethodPost, "/mcp", []byte(`{}`))
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMCPRejectsBadAccept(t *testing.T) {
	s, _ := newTestServer(t)
	req := authedRequest(http.MethodPost, "/mcp", []byte(`{}`))
	req.Header.Set("MCP-Protocol-Version", mcp.ProtocolVersion)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", rec.Code)
	}
}

func TestMCPRejectsMissingAuth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("MCP-Protocol-Version", mcp.ProtocolVersion)
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMCPHandshakeSucceedsThroughFullGateChain(t *testing.T) {
	s, _ := newTestServer(t)
	payload := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`)
	req := authedRequest(http.MethodPost, "/mcp", payload)
	req.Header.Set("MCP-Protocol-Version", mcp.ProtocolVersion)
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for _, h := range []string{"X-RateLimit-Limit-Hour", "X-RateLimit-Remaining-Hour", "X-RateLimit-Reset-Hour", "X-RateLimit-Limit-Day", "X-RateLimit-Remaining-Day", "X-RateLimit-Reset-Day"} {
		if rec.Header().Get(h) == "" {
			t.Fatalf("missing header %s", h)
		}
	}
}

func TestIndexEnqueuesJobForRegisteredRepository(t *testing.T) {
	s, store := newTestServer(t)
	repo, err := store.UpsertRepository(t.Context(), &domain.Repository{OwnerScope: "org-a", FullName: "acme/widgets", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("UpsertRepository: %v", err)
	}

	req := authedRequest(http.MethodPost, "/index", []byte(`{"repository":"`+repo.FullName+`"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.JobID == "" || body.Status != "pending" {
		t.Fatalf("body = %+v", body)
	}
}

func TestIndexRejectsUnknownRepository(t *testing.T) {
	s, _ := newTestServer(t)
	req := authedRequest(http.MethodPost, "/index", []byte(`{"repository":"acme/ghost"}`))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearchReturnsMatchesScopedToCaller(t *testing.T) {
	s, store := newTestServer(t)
	repo, err := store.UpsertRepository(t.Context(), &domain.Repository{OwnerScope: "org-a", FullName: "acme/widgets", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("UpsertRepository: %v", err)
	}
	file := &domain.IndexedFile{RepositoryID: repo.ID, Path: "widget.go", Content: "package widget\nfunc Widget() {}\n", Language: "go", ContentHash: "h1"}
	if err := store.UpsertFile(t.Context(), file, nil, nil, nil); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	req := authedRequest(http.MethodGet, "/search?term=widget", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Matches []interface{} `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(body.Matches) != 1 {
		t.Fatalf("matches = %v, want 1", body.Matches)
	}
}

func TestValidateOutputReportsSchemaViolations(t *testing.T) {
	s, _ := newTestServer(t)
	body := []byte(`{"schema":{"type":"object","required":["name"]},"instance":{}}`)
	req := authedRequest(http.MethodPost, "/validate-output", body)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if result.Valid || len(result.Errors) == 0 {
		t.Fatalf("result = %+v, want invalid", result)
	}
}

func TestRateLimitBreachReturns429WithRetryAfter(t *testing.T) {
	s, _ := newTestServer(t)
	s.Limiter = ratelimit.NewLimiter(map[string]ratelimit.Limits{"pro": {PerHour: 0, PerDay: 0}})

	req := authedRequest(http.MethodGet, "/search?term=x", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestRateLimitBodyReportsTheBreachedWindow(t *testing.T) {
	s, _ := newTestServer(t)
	// Hour budget is wide open; only the day budget is exhausted, so the
	// 429 body must describe the day window, not the hour window.
	s.Limiter = ratelimit.NewLimiter(map[string]ratelimit.Limits{"pro": {PerHour: 1000, PerDay: 0}})

	req := authedRequest(http.MethodGet, "/search?term=x", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body struct {
		Limit     int `json:"limit"`
		Remaining int `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Limit != 0 {
		t.Fatalf("body.Limit = %d, want 0 (the day window's limit)", body.Limit)
	}
}
