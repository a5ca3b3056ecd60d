package queries

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

// maxImpactDepth stands in for "unbounded" in analyze_change_impact's
// "search_dependencies(_, dependents, infinity)": the dependency graph
// is finite per repository, so any depth past the longest possible
// chain reaches a fixed point.
const maxImpactDepth = 1 << 20

// maxImpactResults caps the impacted-file set analyze_change_impact
// returns; repositories large enough to exceed it log how many files
// were dropped rather than truncating silently.
const maxImpactResults = 2000

// ImpactResult is analyze_change_impact's output: the union of files
// impacted by changing any of the input files, summarized by language.
type ImpactResult struct {
	ImpactedFiles []GraphNode    `json:"impacted_files"`
	ByLanguage    map[string]int `json:"by_language"`
	Truncated     bool           `json:"truncated"`
}

// AnalyzeChangeImpact unions search_dependencies(_, dependents, inf)
// over filePaths, scoped to ownerScope (and optionally one
// repository), clamped to maxImpactResults.
func AnalyzeChangeImpact(ctx context.Context, db *sql.DB, ownerScope, repositoryID string, filePaths []string) (*ImpactResult, error) {
	visited := map[string]bool{}
	var seeds []string
	for _, p := range filePaths {
		id, err := resolveFileID(ctx, db, ownerScope, repositoryID, p)
		if err != nil {
			continue // unresolvable seed paths are skipped, not fatal
		}
		if !visited[id] {
			visited[id] = true
			seeds = append(seeds, id)
		}
	}
	if len(seeds) == 0 {
		return &ImpactResult{ByLanguage: map[string]int{}}, nil
	}

	nodes, err := bfs(ctx, db, DirectionDependents, seeds, maxImpactDepth, visited)
	if err != nil {
		return nil, fmt.Errorf("analyzing change impact: %w", err)
	}

	truncated := false
	if len(nodes) > maxImpactResults {
		logging.Warnf("queries", "analyze_change_impact: dropping %d of %d impacted files past the cap", len(nodes)-maxImpactResults, len(nodes))
		nodes = nodes[:maxImpactResults]
		truncated = true
	}

	byLanguage := map[string]int{}
	for _, n := range nodes {
		byLanguage[n.Language]++
	}

	return &ImpactResult{ImpactedFiles: nodes, ByLanguage: byLanguage, Truncated: truncated}, nil
}
