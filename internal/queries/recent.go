package queries

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecentFile is one list_recent_files row.
type RecentFile struct {
	FileID       string    `json:"file_id"`
	RepositoryID string    `json:"repository_id"`
	Path         string    `json:"path"`
	Language     string    `json:"language"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// ListRecentFiles returns the most recently indexed files for
// ownerScope, optionally scoped to one repository.
func ListRecentFiles(ctx context.Context, db *sql.DB, ownerScope, repositoryID string, limit int) ([]RecentFile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT f.id, f.repository_id, f.path, f.language, f.indexed_at
		FROM indexed_files f
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ?`
	args := []interface{}{ownerScope}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` ORDER BY f.indexed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing recent files: %w", err)
	}
	defer rows.Close()

	var out []RecentFile
	for rows.Next() {
		var f RecentFile
		var indexedAt string
		if err := rows.Scan(&f.FileID, &f.RepositoryID, &f.Path, &f.Language, &indexedAt); err != nil {
			return nil, fmt.Errorf("scanning recent file: %w", err)
		}
		f.IndexedAt = parseTime(indexedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
