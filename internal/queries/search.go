// Package queries implements C6: search_code, list_recent_files,
// search_dependencies, and analyze_change_impact. Every operation is
// scoped by the caller's owner/org — repository_id predicates always
// join through repositories.owner_scope.
package queries

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const snippetRadius = 80

// CodeMatch is one search_code hit.
type CodeMatch struct {
	FileID        string    `json:"file_id"`
	RepositoryID  string    `json:"repository_id"`
	Path          string    `json:"path"`
	Language      string    `json:"language"`
	Snippet       string    `json:"snippet"`
	MatchPosition int       `json:"match_position"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// SearchCode performs a case-insensitive substring search over
// indexed_files.content, scoped to ownerScope and optionally to one
// repository, ordered by indexed_at DESC.
func SearchCode(ctx context.Context, db *sql.DB, ownerScope, term, repositoryID string, limit int) ([]CodeMatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT f.id, f.repository_id, f.path, f.language, f.content, f.indexed_at
		FROM indexed_files f
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ? AND LOWER(f.content) LIKE '%' || LOWER(?) || '%'`
	args := []interface{}{ownerScope, term}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` ORDER BY f.indexed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching code: %w", err)
	}
	defer rows.Close()

	var out []CodeMatch
	for rows.Next() {
		var m CodeMatch
		var content, indexedAt string
		if err := rows.Scan(&m.FileID, &m.RepositoryID, &m.Path, &m.Language, &content, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		m.IndexedAt = parseTime(indexedAt)
		m.MatchPosition, m.Snippet = snippetAround(content, term)
		out = append(out, m)
	}
	return out, rows.Err()
}

// snippetAround locates the first case-insensitive occurrence of term
// in content and widens by snippetRadius characters on each side,
// returning the match's byte position in the original content and the
// extracted snippet.
func snippetAround(content, term string) (int, string) {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(term))
	if idx < 0 {
		return -1, ""
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(term) + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	return idx, content[start:end]
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
