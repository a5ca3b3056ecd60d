package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// recordDeletion logs one row removal against a whitelisted table,
// for the sync exporter (C10) to flush to .deletions.jsonl. Called
// from inside the same transaction as the delete itself, so the log
// entry and the removal are atomic together.
func recordDeletion(ctx context.Context, tx *sql.Tx, table, rowID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_deletions (table_name, row_id, deleted_at) VALUES (?, ?, ?)
	`, table, rowID, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("recording deletion of %s/%s: %w", table, rowID, err)
	}
	return nil
}

// PendingDeletions returns every deletion not yet flushed by an
// export, oldest first.
func (s *Store) PendingDeletions(ctx context.Context) ([]domain.Deletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, table_name, row_id, deleted_at FROM sync_deletions ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing pending deletions: %w", err)
	}
	defer rows.Close()

	var out []domain.Deletion
	for rows.Next() {
		var d domain.Deletion
		var deletedAt string
		if err := rows.Scan(&d.ID, &d.Table, &d.RowID, &deletedAt); err != nil {
			return nil, err
		}
		d.DeletedAt = parseTime(deletedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClearDeletionsThrough removes every pending deletion with id <= through,
// called once an export has successfully flushed them.
func (s *Store) ClearDeletionsThrough(ctx context.Context, through int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_deletions WHERE id <= ?`, through)
	if err != nil {
		return fmt.Errorf("clearing flushed deletions: %w", err)
	}
	return nil
}
