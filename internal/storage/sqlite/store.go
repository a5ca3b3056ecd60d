package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is the single-writer-per-process embedded relational store (C1).
// All reads and writes are multiplexed through the one *sql.DB, which
// is capped at a single open connection, so queries run one at a time.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the KotaDB store at path and
// ensures the baseline schema exists. path is a plain filesystem path;
// the file: URL prefix required by the ncruces/go-sqlite3 driver is
// applied here so callers never have to know about it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer per process; driver serializes

	s := &Store{db: db, path: path}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying connection. Exposed for the migration
// runner and for package-private query helpers in sibling files.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the filesystem path backing the store.
func (s *Store) Path() string { return s.path }

// Close closes the store's connection.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// GetConfig reads a value from the key-value config table, following
// the ConfigStore shape the sync exporter's policy loader expects.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading config %q: %w", key, err)
	}
	return value, nil
}

// SetConfig upserts a value into the key-value config table.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("writing config %q: %w", key, err)
	}
	return nil
}
