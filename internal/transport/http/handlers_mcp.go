package httptransport

import (
	"io"
	"net/http"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
)

// handleMCP dispatches one JSON-RPC message through the shared
// dispatcher. A notification yields no body at all: the response is
// 202 Accepted, since JSON-RPC 2.0 gives it nothing to report.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "reading request body")
		return
	}

	caller := callerFromContext(r)
	resp := s.Dispatcher.Dispatch(r.Context(), caller, raw)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMCPMetadata answers GET /mcp with the status document the
// spec calls for; this revision never opens an SSE stream.
func (s *Server) handleMCPMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"protocol":  mcp.ProtocolVersion,
		"version":   s.Version,
		"transport": "http",
	})
}
