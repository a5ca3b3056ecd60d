package queries

import (
	"context"
	"database/sql"
	"fmt"
)

// SymbolExists reports whether a symbol named name is recorded against
// the file at path, within ownerScope. Used by validate_implementation_spec
// to check a requirement without loading the whole file's symbol table.
func SymbolExists(ctx context.Context, db *sql.DB, ownerScope, repositoryID, path, name string) (bool, error) {
	query := `
		SELECT 1
		FROM indexed_symbols s
		JOIN indexed_files f ON f.id = s.file_id
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ? AND f.path = ? AND s.name = ?`
	args := []interface{}{ownerScope, path, name}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` LIMIT 1`

	var one int
	err := db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking symbol %q in %q: %w", name, path, err)
	}
	return true, nil
}

// FileExists reports whether path is indexed at all, within ownerScope.
func FileExists(ctx context.Context, db *sql.DB, ownerScope, repositoryID, path string) (bool, error) {
	query := `
		SELECT 1 FROM indexed_files f
		JOIN repositories r ON r.id = f.repository_id
		WHERE r.owner_scope = ? AND f.path = ?`
	args := []interface{}{ownerScope, path}
	if repositoryID != "" {
		query += ` AND f.repository_id = ?`
		args = append(args, repositoryID)
	}
	query += ` LIMIT 1`

	var one int
	err := db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking file %q: %w", path, err)
	}
	return true, nil
}
