// Package httptransport implements C8: binding the MCP dispatcher and REST
// surface to an HTTP route, enforcing origin / protocol-version /
// accept / session / auth / rate-limit gates ahead of every request
// (4.6) and attaching the six X-RateLimit-* headers to every
// authenticated response (P8).
package httptransport

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jayminwest/kotadb-sub013/internal/auth"
	"github.com/jayminwest/kotadb-sub013/internal/jobs"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
	"github.com/jayminwest/kotadb-sub013/internal/ratelimit"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
)

// QueueStatsProvider is the subset of *sqlite.Store the health
// handler needs. Satisfied by *sqlite.Store.
type QueueStatsProvider interface {
	QueueStats(ctx context.Context, workers int) (sqlite.QueueStats, error)
}

// Server binds the MCP dispatcher and REST handlers to chi routes.
type Server struct {
	DB           *sql.DB
	Dispatcher   *mcp.Dispatcher
	Tracker      *jobs.Tracker
	Repositories RepositoryStore
	Queue        QueueStatsProvider
	KeyStore     auth.KeyStore
	JWTSecret    []byte
	Limiter      *ratelimit.Limiter
	Workers      int
	Version      string

	// AllowedOrigins is a list of origin patterns; a trailing ":*"
	// matches any port (so "http://localhost:*" matches any localhost
	// port) and a bare "*" matches any origin.
	AllowedOrigins []string
}

// DefaultAllowedOrigins matches spec 4.6 item 1's default allow-list.
var DefaultAllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// NewServer builds a Server with sane defaults; callers override
// fields before calling Router.
func NewServer(db *sql.DB, dispatcher *mcp.Dispatcher, tracker *jobs.Tracker, repositories RepositoryStore, queue QueueStatsProvider, keyStore auth.KeyStore) *Server {
	origins := DefaultAllowedOrigins
	if env := os.Getenv("KOTA_ALLOWED_ORIGINS"); env != "" {
		origins = strings.Split(env, ",")
	}
	return &Server{
		DB:             db,
		Dispatcher:     dispatcher,
		Tracker:        tracker,
		Repositories:   repositories,
		Queue:          queue,
		KeyStore:       keyStore,
		Limiter:        ratelimit.NewLimiter(nil),
		Workers:        3,
		Version:        "dev",
		AllowedOrigins: origins,
	}
}

// Router builds the chi router: the MCP route carries the full gate
// chain; REST routes carry auth/rate-limit but not the MCP-specific
// protocol-version/accept/session gates, matching 4.6's scoping to
// "POST /mcp".
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	mcpChain := chain(s.gateOrigin, s.gateProtocolVersion, s.gateAccept, s.gateSession, s.gateAuth, s.gateRateLimit)
	r.Method(http.MethodPost, "/mcp", mcpChain(http.HandlerFunc(s.handleMCP)))
	r.Method(http.MethodGet, "/mcp", mcpChain(http.HandlerFunc(s.handleMCPMetadata)))

	restChain := chain(s.gateOrigin, s.gateAuth, s.gateRateLimit)
	r.Method(http.MethodPost, "/index", restChain(http.HandlerFunc(s.handleIndex)))
	r.Method(http.MethodGet, "/jobs/{jobId}", restChain(http.HandlerFunc(s.handleJobStatus)))
	r.Method(http.MethodGet, "/search", restChain(http.HandlerFunc(s.handleSearch)))
	r.Method(http.MethodGet, "/files/recent", restChain(http.HandlerFunc(s.handleRecentFiles)))
	r.Method(http.MethodPost, "/validate-output", restChain(http.HandlerFunc(s.handleValidateOutput)))

	return r
}

type middleware func(http.Handler) http.Handler

// chain composes middlewares in the order given, so the first one
// listed is the outermost (runs first).
func chain(mw ...middleware) middleware {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		return h
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type healthBody struct {
		Status    string      `json:"status"`
		Timestamp string      `json:"timestamp"`
		Queue     interface{} `json:"queue,omitempty"`
	}
	body := healthBody{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if s.Queue != nil {
		if stats, err := s.Queue.QueueStats(r.Context(), s.Workers); err == nil {
			body.Queue = stats
		} else {
			logging.Warnf("http", "health: queue stats: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// callerFromContext pulls the CallerContext set by gateAuth out of
// the request context.
func callerFromContext(r *http.Request) mcp.CallerContext {
	caller, _ := r.Context().Value(callerContextKey{}).(mcp.CallerContext)
	return caller
}

type callerContextKey struct{}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
