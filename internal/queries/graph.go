package queries

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
)

// Direction selects which edge of indexed_dependencies to walk.
type Direction string

const (
	// DirectionDependencies walks from_file_id -> to_file_id: "what
	// does this file depend on".
	DirectionDependencies Direction = "dependencies"
	// DirectionDependents walks to_file_id -> from_file_id: "what
	// depends on this file".
	DirectionDependents Direction = "dependents"
)

// GraphNode is one file reached while walking the dependency graph.
type GraphNode struct {
	FileID   string `json:"file_id"`
	Path     string `json:"path"`
	Language string `json:"language"`
	Depth    int    `json:"depth"`
}

// SearchDependencies runs a bounded BFS over the dependency graph
// starting at filePath, per spec 4.4: cycles are allowed, each node is
// emitted at most once, and maxDepth clamps traversal.
func SearchDependencies(ctx context.Context, db *sql.DB, ownerScope, repositoryID, filePath string, direction Direction, maxDepth int) ([]GraphNode, error) {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	startID, err := resolveFileID(ctx, db, ownerScope, repositoryID, filePath)
	if err != nil {
		return nil, err
	}

	return bfs(ctx, db, direction, []string{startID}, maxDepth, nil)
}

// bfs walks direction from every id in seeds, excluding the seeds
// themselves from the result, stopping expansion past maxDepth.
// alreadyVisited lets callers (analyze_change_impact) share one
// visited set across multiple seeds so the union stays deduplicated.
func bfs(ctx context.Context, db *sql.DB, direction Direction, seeds []string, maxDepth int, alreadyVisited map[string]bool) ([]GraphNode, error) {
	edgeQuery := `
		SELECT d.to_file_id, tf.path, tf.language
		FROM indexed_dependencies d
		JOIN indexed_files tf ON tf.id = d.to_file_id
		WHERE d.from_file_id = ?`
	if direction == DirectionDependents {
		edgeQuery = `
			SELECT d.from_file_id, ff.path, ff.language
			FROM indexed_dependencies d
			JOIN indexed_files ff ON ff.id = d.from_file_id
			WHERE d.to_file_id = ?`
	}

	visited := alreadyVisited
	if visited == nil {
		visited = map[string]bool{}
	}
	type queued struct {
		id    string
		depth int
	}
	queue := make([]queued, 0, len(seeds))
	for _, s := range seeds {
		visited[s] = true
		queue = append(queue, queued{id: s, depth: 0})
	}

	var out []GraphNode
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		rows, err := db.QueryContext(ctx, edgeQuery, cur.id)
		if err != nil {
			return nil, fmt.Errorf("walking dependency graph: %w", err)
		}
		for rows.Next() {
			var id, path, language string
			if err := rows.Scan(&id, &path, &language); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning graph edge: %w", err)
			}
			if visited[id] {
				continue
			}
			visited[id] = true
			node := GraphNode{FileID: id, Path: path, Language: language, Depth: cur.depth + 1}
			out = append(out, node)
			queue = append(queue, queued{id: id, depth: cur.depth + 1})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// resolveFileID looks up a file's id by its exact path within scope,
// returning a NOT_FOUND error naming the closest known path (by
// Levenshtein distance) when there is no exact match, so a caller who
// mistyped a path gets a useful correction instead of a bare miss.
func resolveFileID(ctx context.Context, db *sql.DB, ownerScope, repositoryID, filePath string) (string, error) {
	query := `
		SELECT f.id FROM indexed_files f
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ? AND f.path = ?`
	args := []interface{}{ownerScope, filePath}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}

	var id string
	err := db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("resolving file path: %w", err)
	}

	suggestion, suggestErr := closestPath(ctx, db, ownerScope, repositoryID, filePath)
	if suggestErr != nil || suggestion == "" {
		return "", kotaerr.New(kotaerr.NotFound, fmt.Sprintf("no indexed file at path %q", filePath))
	}
	return "", kotaerr.New(kotaerr.NotFound, fmt.Sprintf("no indexed file at path %q; did you mean %q?", filePath, suggestion))
}

func closestPath(ctx context.Context, db *sql.DB, ownerScope, repositoryID, filePath string) (string, error) {
	query := `
		SELECT f.path FROM indexed_files f
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ?`
	args := []interface{}{ownerScope}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	best, bestDist := "", -1
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return "", err
		}
		dist := levenshtein.ComputeDistance(filePath, path)
		if bestDist == -1 || dist < bestDist {
			best, bestDist = path, dist
		}
	}
	return best, rows.Err()
}
