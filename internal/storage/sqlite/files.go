package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
)

// FileContentHash returns the content_hash currently stored for
// (repositoryID, path), or "" if the file has never been indexed. The
// indexer (internal/jobs) uses this for the no-op check in G3.
func (s *Store) FileContentHash(ctx context.Context, repositoryID, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM indexed_files WHERE repository_id = ? AND path = ?`,
		repositoryID, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading content hash: %w", err)
	}
	return hash, nil
}

// UpsertFile replaces the entire symbol/reference/dependency set for a
// file within one transaction, matching spec 4.2 step 5's "single
// transactional upsert per file: replace all rows ... upsert
// indexed_files." G2 is enforced here: references may only target
// symbols passed in the same call.
func (s *Store) UpsertFile(ctx context.Context, file *domain.IndexedFile, symbols []*domain.Symbol, refs []*domain.Reference, deps []*domain.Dependency) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if file.ID == "" {
			var existing string
			err := tx.QueryRowContext(ctx, `SELECT id FROM indexed_files WHERE repository_id = ? AND path = ?`,
				file.RepositoryID, file.Path).Scan(&existing)
			switch {
			case err == sql.ErrNoRows:
				file.ID = uuid.NewString()
			case err != nil:
				return fmt.Errorf("looking up existing file: %w", err)
			default:
				file.ID = existing
			}
		}
		file.IndexedAt = time.Now().UTC()

		depsJSON, err := json.Marshal(file.Dependencies)
		if err != nil {
			return fmt.Errorf("marshaling dependency list: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO indexed_files (id, repository_id, path, content, language, dependencies, content_hash, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repository_id, path) DO UPDATE SET
				content = excluded.content,
				language = excluded.language,
				dependencies = excluded.dependencies,
				content_hash = excluded.content_hash,
				indexed_at = excluded.indexed_at
		`, file.ID, file.RepositoryID, file.Path, file.Content, file.Language, string(depsJSON), file.ContentHash, formatTime(file.IndexedAt))
		if err != nil {
			return fmt.Errorf("upserting file: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_symbols WHERE file_id = ?`, file.ID); err != nil {
			return fmt.Errorf("clearing symbols: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_dependencies WHERE from_file_id = ?`, file.ID); err != nil {
			return fmt.Errorf("clearing dependencies: %w", err)
		}
		// References are cleared implicitly via ON DELETE CASCADE from
		// indexed_symbols, but a file may also own references whose
		// source is this file with a symbol from elsewhere pruned
		// separately, so clear by from_file_id too.
		if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_references WHERE from_file_id = ?`, file.ID); err != nil {
			return fmt.Errorf("clearing references: %w", err)
		}

		for _, sym := range symbols {
			if sym.ID == "" {
				sym.ID = uuid.NewString()
			}
			sym.FileID = file.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO indexed_symbols (id, file_id, name, kind, start_offset) VALUES (?, ?, ?, ?, ?)
			`, sym.ID, sym.FileID, sym.Name, string(sym.Kind), sym.StartOffset); err != nil {
				return fmt.Errorf("inserting symbol %q: %w", sym.Name, err)
			}
		}

		// G2: only insert references whose target symbol exists in this
		// same snapshot (the symbols just inserted above); unresolved
		// references are dropped, not stored.
		known := make(map[string]bool, len(symbols))
		for _, sym := range symbols {
			known[sym.ID] = true
		}
		for _, ref := range refs {
			if !known[ref.ToSymbolID] {
				continue
			}
			if ref.ID == "" {
				ref.ID = uuid.NewString()
			}
			ref.FromFileID = file.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO indexed_references (id, from_file_id, to_symbol_id, position) VALUES (?, ?, ?, ?)
			`, ref.ID, ref.FromFileID, ref.ToSymbolID, ref.Position); err != nil {
				return fmt.Errorf("inserting reference: %w", err)
			}
		}

		for _, dep := range deps {
			if dep.ID == "" {
				dep.ID = uuid.NewString()
			}
			dep.FromFileID = file.ID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO indexed_dependencies (id, from_file_id, to_file_id, kind) VALUES (?, ?, ?, ?)
			`, dep.ID, dep.FromFileID, dep.ToFileID, string(dep.Kind)); err != nil {
				return fmt.Errorf("inserting dependency: %w", err)
			}
		}

		return nil
	})
}

// FileIDByPath resolves an existing file's id, for the dependency
// resolution pass that needs to turn a path into a to_file_id without
// re-upserting the file.
func (s *Store) FileIDByPath(ctx context.Context, repositoryID, path string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM indexed_files WHERE repository_id = ? AND path = ?`,
		repositoryID, path).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolving file id for %q: %w", path, err)
	}
	return id, true, nil
}

// SetFileDependencies replaces a file's dependency edges without
// touching its symbols or references, used by the indexer's
// second pass once every file in the job has a known id.
func (s *Store) SetFileDependencies(ctx context.Context, fileID string, deps []*domain.Dependency) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM indexed_dependencies WHERE from_file_id = ?`, fileID); err != nil {
			return fmt.Errorf("clearing dependencies: %w", err)
		}
		for _, dep := range deps {
			if dep.ID == "" {
				dep.ID = uuid.NewString()
			}
			dep.FromFileID = fileID
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO indexed_dependencies (id, from_file_id, to_file_id, kind) VALUES (?, ?, ?, ?)
			`, dep.ID, dep.FromFileID, dep.ToFileID, string(dep.Kind)); err != nil {
				return fmt.Errorf("inserting dependency: %w", err)
			}
		}
		return nil
	})
}

// TouchFileIndexedAt updates only indexed_at for an unchanged file,
// satisfying G3 ("re-indexing an unchanged file must be a no-op beyond
// updating indexed_at").
func (s *Store) TouchFileIndexedAt(ctx context.Context, fileID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE indexed_files SET indexed_at = ? WHERE id = ?`,
		formatTime(time.Now().UTC()), fileID)
	if err != nil {
		return fmt.Errorf("touching file: %w", err)
	}
	return nil
}

// GetFile loads a file by id.
func (s *Store) GetFile(ctx context.Context, id string) (*domain.IndexedFile, error) {
	row := s.db.QueryRowContext(ctx, fileSelect+` WHERE id = ?`, id)
	return scanFile(row)
}

const fileSelect = `
	SELECT id, repository_id, path, content, language, dependencies, content_hash, indexed_at
	FROM indexed_files`

func scanFile(row rowScanner) (*domain.IndexedFile, error) {
	var f domain.IndexedFile
	var depsJSON, indexedAt string

	err := row.Scan(&f.ID, &f.RepositoryID, &f.Path, &f.Content, &f.Language, &depsJSON, &f.ContentHash, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}
	_ = json.Unmarshal([]byte(depsJSON), &f.Dependencies)
	f.IndexedAt = parseTime(indexedAt)
	return &f, nil
}
