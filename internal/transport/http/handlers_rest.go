package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/jsonschema"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/queries"
)

// RepositoryStore is the subset of *sqlite.Store the REST handlers
// need to resolve a caller-supplied repository full name to its id.
type RepositoryStore interface {
	GetRepositoryByName(ctx context.Context, ownerScope, fullName string) (*domain.Repository, error)
}

type indexRequest struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
	LocalPath  string `json:"localPath"`
}

// handleIndex implements POST /index: enqueue an index job for an
// already-registered repository, defaulting ref to its default
// branch. localPath is accepted for request-shape compatibility but
// is not yet threaded through to the worker pool's per-job fetch
// (the pool always resolves against its own working-tree cache; see
// DESIGN.md).
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "decoding request body")
		return
	}
	if req.Repository == "" {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "repository is required")
		return
	}

	caller := callerFromContext(r)
	repo, err := s.Repositories.GetRepositoryByName(r.Context(), caller.OwnerScope, req.Repository)
	if err != nil || repo == nil {
		writeError(w, http.StatusNotFound, kotaerr.NotFound, "repository not registered")
		return
	}

	ref := req.Ref
	if ref == "" {
		ref = repo.DefaultBranch
	}

	job, err := s.Tracker.Enqueue(r.Context(), repo.ID, ref, "", caller.KeyID)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": string(job.Status)})
}

// handleJobStatus implements GET /jobs/{jobId}.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := s.Tracker.Status(r.Context(), jobID)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, kotaerr.NotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeTrackerError(w http.ResponseWriter, err error) {
	if ke, ok := kotaerr.As(err); ok {
		status := http.StatusInternalServerError
		if ke.Code == kotaerr.NotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, ke.Code, ke.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, kotaerr.Internal, err.Error())
}

// handleSearch implements GET /search?term=&repository=&limit=, the
// REST twin of the search_code tool.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r)
	term := r.URL.Query().Get("term")
	if term == "" {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "term is required")
		return
	}
	limit := atoiOr(r.URL.Query().Get("limit"), 20)

	repositoryID, err := resolveRepositoryParam(r, s, caller.OwnerScope)
	if err != nil {
		writeError(w, http.StatusNotFound, kotaerr.NotFound, err.Error())
		return
	}

	matches, err := queries.SearchCode(r.Context(), s.DB, caller.OwnerScope, term, repositoryID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kotaerr.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

// handleRecentFiles implements GET /files/recent?limit=.
func (s *Server) handleRecentFiles(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r)
	limit := atoiOr(r.URL.Query().Get("limit"), 20)

	repositoryID, err := resolveRepositoryParam(r, s, caller.OwnerScope)
	if err != nil {
		writeError(w, http.StatusNotFound, kotaerr.NotFound, err.Error())
		return
	}

	files, err := queries.ListRecentFiles(r.Context(), s.DB, caller.OwnerScope, repositoryID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, kotaerr.Internal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func resolveRepositoryParam(r *http.Request, s *Server, ownerScope string) (string, error) {
	fullName := r.URL.Query().Get("repository")
	if fullName == "" {
		return "", nil
	}
	repo, err := s.Repositories.GetRepositoryByName(r.Context(), ownerScope, fullName)
	if err != nil || repo == nil {
		return "", errRepositoryNotFound{fullName: fullName}
	}
	return repo.ID, nil
}

type errRepositoryNotFound struct{ fullName string }

func (e errRepositoryNotFound) Error() string { return "repository not found: " + e.fullName }

type validateOutputRequest struct {
	Schema   json.RawMessage `json:"schema"`
	Instance json.RawMessage `json:"instance"`
}

// handleValidateOutput implements POST /validate-output.
func (s *Server) handleValidateOutput(w http.ResponseWriter, r *http.Request) {
	var req validateOutputRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, "decoding request body")
		return
	}
	valid, errs, err := jsonschema.Validate(req.Schema, req.Instance)
	if err != nil {
		writeError(w, http.StatusBadRequest, kotaerr.InvalidParams, err.Error())
		return
	}

	body := map[string]interface{}{"valid": valid}
	if len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.String()
		}
		body["errors"] = messages
	}
	writeJSON(w, http.StatusOK, body)
}
