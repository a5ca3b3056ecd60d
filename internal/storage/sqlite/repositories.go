package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// UpsertRepository creates or updates a repository by its (owner_scope,
// full_name) identity, matching the federation-index pattern of
// INSERT ... ON CONFLICT DO UPDATE for idempotent writes.
func (s *Store) UpsertRepository(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, owner_scope, full_name, git_url, default_branch, installation_id, last_push_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_scope, full_name) DO UPDATE SET
			git_url = excluded.git_url,
			default_branch = excluded.default_branch,
			installation_id = excluded.installation_id,
			last_push_at = excluded.last_push_at,
			updated_at = excluded.updated_at
	`, r.ID, r.OwnerScope, r.FullName, r.GitURL, r.DefaultBranch,
		nullString(r.InstallationID), nullTime(r.LastPushAt), formatTime(r.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upserting repository: %w", err)
	}

	return s.GetRepositoryByName(ctx, r.OwnerScope, r.FullName)
}

// GetRepository loads a repository by id.
func (s *Store) GetRepository(ctx context.Context, id string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, repoSelect+` WHERE id = ?`, id)
	return scanRepository(row)
}

// GetRepositoryByName loads a repository by its unique (owner_scope, full_name).
func (s *Store) GetRepositoryByName(ctx context.Context, ownerScope, fullName string) (*domain.Repository, error) {
	row := s.db.QueryRowContext(ctx, repoSelect+` WHERE owner_scope = ? AND full_name = ?`, ownerScope, fullName)
	return scanRepository(row)
}

// ListRepositories returns every repository owned by ownerScope.
func (s *Store) ListRepositories(ctx context.Context, ownerScope string) ([]*domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx, repoSelect+` WHERE owner_scope = ? ORDER BY full_name`, ownerScope)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var out []*domain.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRepository removes a repository and, via ON DELETE CASCADE,
// every row reachable from it (G1: no orphan file/symbol/reference/
// dependency may survive).
func (s *Store) DeleteRepository(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting repository: %w", err)
		}
		return recordDeletion(ctx, tx, "repositories", id)
	})
}

const repoSelect = `
	SELECT id, owner_scope, full_name, git_url, default_branch, installation_id, last_push_at, updated_at
	FROM repositories`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var r domain.Repository
	var installationID, lastPushAt sql.NullString
	var updatedAt string

	err := row.Scan(&r.ID, &r.OwnerScope, &r.FullName, &r.GitURL, &r.DefaultBranch,
		&installationID, &lastPushAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning repository: %w", err)
	}

	r.InstallationID = installationID.String
	if lastPushAt.Valid {
		t := parseTime(lastPushAt.String)
		r.LastPushAt = &t
	}
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
