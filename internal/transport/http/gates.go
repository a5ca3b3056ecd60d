package httptransport

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/jayminwest/kotadb-sub013/internal/auth"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
)

const maxSessionIDLength = 256

// gateOrigin implements 4.6 item 1: Origin must be present and match
// the allow-list, else 403 FORBIDDEN_ORIGIN.
func (s *Server) gateOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !originAllowed(origin, s.AllowedOrigins) {
			writeError(w, http.StatusForbidden, kotaerr.ForbiddenOrigin, "origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesOriginPattern(origin, strings.TrimSpace(pattern)) {
			return true
		}
	}
	return false
}

// matchesOriginPattern matches "scheme://host:*" against an origin by
// comparing everything up to the port wildcard; "*" alone matches any
// origin.
func matchesOriginPattern(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(origin, prefix)
	}
	return origin == pattern
}

// gateProtocolVersion implements 4.6 item 2.
func (s *Server) gateProtocolVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("MCP-Protocol-Version") != mcp.ProtocolVersion {
			writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "missing or mismatched MCP-Protocol-Version")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gateAccept implements 4.6 item 3.
func (s *Server) gateAccept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
			writeError(w, http.StatusNotAcceptable, kotaerr.NotAcceptable, "Accept must include application/json and text/event-stream")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gateSession implements 4.6 item 4: the server is stateless, so a
// present Mcp-Session-Id is only format-checked, never persisted.
func (s *Server) gateSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionID := r.Header.Get("Mcp-Session-Id"); sessionID != "" {
			if len(sessionID) > maxSessionIDLength {
				writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "Mcp-Session-Id exceeds maximum length")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// gateAuth implements 4.6 item 5, storing the resolved CallerContext
// in the request context for handlers and gateRateLimit to read.
func (s *Server) gateAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := auth.Authenticate(r.Context(), s.KeyStore, s.JWTSecret, r.Header.Get("Authorization"))
		if err != nil {
			writeAuthError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerContextKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	if ke, ok := kotaerr.As(err); ok {
		writeError(w, http.StatusUnauthorized, ke.Code, ke.Message)
		return
	}
	writeError(w, http.StatusUnauthorized, kotaerr.AuthInvalidKey, "authentication failed")
}

// gateRateLimit implements 4.6 item 6 and P8: every authenticated
// response carries both windows' headers regardless of breach.
func (s *Server) gateRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFromContext(r)
		result := s.Limiter.Allow(caller.Tier, caller.KeyID)
		writeRateLimitHeaders(w, result)

		if result.Limited {
			breached := result.Hour
			if result.Day.Remaining < 0 {
				breached = result.Day
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(breached.Reset)))
			body := map[string]interface{}{
				"error":     "rate limit exceeded",
				"code":      string(kotaerr.RateLimited),
				"limit":     breached.Limit,
				"remaining": max0(breached.Remaining),
				"reset":     breached.Reset.Unix(),
			}
			writeJSON(w, http.StatusTooManyRequests, body)
			return
		}

		next.ServeHTTP(w, r)
	})
}
