package main

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jayminwest/kotadb-sub013/internal/jobs"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
	"github.com/jayminwest/kotadb-sub013/internal/queries"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
	"github.com/jayminwest/kotadb-sub013/internal/sync/export"
	"github.com/jayminwest/kotadb-sub013/internal/sync/importer"
	"github.com/jayminwest/kotadb-sub013/internal/validation"
)

// buildDeps wires C6/C5/C10/C11 into the tool executors the MCP
// dispatcher calls by name. This is the one place the dispatcher's
// Deps map touches the rest of the domain, matching the comment on
// mcp.Deps itself: the dispatcher never imports these packages
// directly.
func buildDeps(store *sqlite.Store, tracker *jobs.Tracker) mcp.Deps {
	db := store.DB()
	return mcp.Deps{
		"search_code":                  searchCodeTool(db),
		"index_repository":             indexRepositoryTool(tracker),
		"list_recent_files":            listRecentFilesTool(db),
		"search_dependencies":          searchDependenciesTool(db),
		"analyze_change_impact":        analyzeChangeImpactTool(db),
		"validate_implementation_spec": validateImplementationSpecTool(db),
		"kota_sync_export":             syncExportTool(store),
		"kota_sync_import":             syncImportTool(db),
	}
}

func searchCodeTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			Term         string `json:"term"`
			RepositoryID string `json:"repository_id"`
			Limit        int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding search_code arguments", err)
		}
		if params.Term == "" {
			return nil, kotaerr.New(kotaerr.InvalidParams, "term is required")
		}
		return queries.SearchCode(ctx, db, caller.OwnerScope, params.Term, params.RepositoryID, params.Limit)
	}
}

func listRecentFilesTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			RepositoryID string `json:"repository_id"`
			Limit        int    `json:"limit"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding list_recent_files arguments", err)
			}
		}
		return queries.ListRecentFiles(ctx, db, caller.OwnerScope, params.RepositoryID, params.Limit)
	}
}

func searchDependenciesTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			RepositoryID string `json:"repository_id"`
			FilePath     string `json:"file_path"`
			Direction    string `json:"direction"`
			Depth        int    `json:"depth"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding search_dependencies arguments", err)
		}
		if params.FilePath == "" || params.Direction == "" {
			return nil, kotaerr.New(kotaerr.InvalidParams, "file_path and direction are required")
		}
		return queries.SearchDependencies(ctx, db, caller.OwnerScope, params.RepositoryID, params.FilePath,
			queries.Direction(params.Direction), params.Depth)
	}
}

func analyzeChangeImpactTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			RepositoryID string   `json:"repository_id"`
			FilePaths    []string `json:"file_paths"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding analyze_change_impact arguments", err)
		}
		if len(params.FilePaths) == 0 {
			return nil, kotaerr.New(kotaerr.InvalidParams, "file_paths must not be empty")
		}
		return queries.AnalyzeChangeImpact(ctx, db, caller.OwnerScope, params.RepositoryID, params.FilePaths)
	}
}

func validateImplementationSpecTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			RepositoryID string                   `json:"repository_id"`
			Requirements []validation.Requirement `json:"requirements"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding validate_implementation_spec arguments", err)
		}
		if len(params.Requirements) == 0 {
			return nil, kotaerr.New(kotaerr.InvalidParams, "requirements must not be empty")
		}
		return validation.ValidateImplementationSpec(ctx, db, caller.OwnerScope, params.RepositoryID, params.Requirements)
	}
}

func indexRepositoryTool(tracker *jobs.Tracker) mcp.ToolExecutor {
	return func(ctx context.Context, caller mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			RepositoryID string `json:"repository_id"`
			Ref          string `json:"ref"`
			CommitSHA    string `json:"commit_sha"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding index_repository arguments", err)
		}
		if params.RepositoryID == "" || params.Ref == "" || params.CommitSHA == "" {
			return nil, kotaerr.New(kotaerr.InvalidParams, "repository_id, ref, and commit_sha are required")
		}
		return tracker.Enqueue(ctx, params.RepositoryID, params.Ref, params.CommitSHA, caller.KeyID)
	}
}

func syncExportTool(store *sqlite.Store) mcp.ToolExecutor {
	return func(ctx context.Context, _ mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			ExportDir string `json:"export_dir"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding kota_sync_export arguments", err)
		}
		if params.ExportDir == "" {
			return nil, kotaerr.New(kotaerr.InvalidParams, "export_dir is required")
		}
		return export.Export(ctx, store.DB(), store, params.ExportDir, nil)
	}
}

func syncImportTool(db *sql.DB) mcp.ToolExecutor {
	return func(ctx context.Context, _ mcp.CallerContext, args []byte) (interface{}, error) {
		var params struct {
			ExportDir string `json:"export_dir"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, kotaerr.Wrap(kotaerr.InvalidParams, "decoding kota_sync_import arguments", err)
		}
		if params.ExportDir == "" {
			return nil, kotaerr.New(kotaerr.InvalidParams, "export_dir is required")
		}
		return importer.Import(ctx, db, params.ExportDir, nil)
	}
}
