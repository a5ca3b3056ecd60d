// Package export implements C10: dumping the whitelisted tables of
// the embedded store to one JSONL file per table, plus a deletions
// log, for the external sync mechanism (git) to version.
package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jayminwest/kotadb-sub013/internal/domain"
	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/sync"
)

// DeletionSource is the subset of *sqlite.Store the exporter needs to
// flush pending deletions; satisfied directly by *sqlite.Store.
type DeletionSource interface {
	PendingDeletions(ctx context.Context) ([]domain.Deletion, error)
	ClearDeletionsThrough(ctx context.Context, through int64) error
}

// TableResult reports how many rows one table's JSONL file carries.
type TableResult struct {
	Table string
	Rows  int
}

// Result summarizes one Export call.
type Result struct {
	Tables           []TableResult
	DeletionsFlushed int
}

// Export first appends any pending deletions to the deletions log,
// then writes dir/<table>.jsonl for each entry in tables (defaulting
// to sync.Tables when nil), and clears the pending deletions once
// every table body has been written successfully.
// Export fails fast with a kotaerr.Security error if any requested
// table is outside the whitelist.
func Export(ctx context.Context, db *sql.DB, deletions DeletionSource, dir string, tables []string) (*Result, error) {
	if tables == nil {
		tables = sync.Tables
	}
	for _, t := range tables {
		if !sync.Allowed(t) {
			return nil, kotaerr.New(kotaerr.Security, fmt.Sprintf("table %q is not in the sync export whitelist", t))
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("export: creating directory: %w", err)
	}

	pending, err := deletions.PendingDeletions(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: loading pending deletions: %w", err)
	}
	if err := flushDeletions(dir, pending); err != nil {
		return nil, fmt.Errorf("export: flushing deletions: %w", err)
	}

	result := &Result{}
	for _, table := range tables {
		rows, err := exportTable(ctx, db, dir, table)
		if err != nil {
			return nil, fmt.Errorf("export: table %s: %w", table, err)
		}
		result.Tables = append(result.Tables, TableResult{Table: table, Rows: rows})
	}

	if len(pending) > 0 {
		if err := deletions.ClearDeletionsThrough(ctx, pending[len(pending)-1].ID); err != nil {
			return nil, fmt.Errorf("export: clearing flushed deletions: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, sync.DeletionsFileName), nil, 0o640); err != nil {
			return nil, fmt.Errorf("export: clearing deletions file: %w", err)
		}
		result.DeletionsFlushed = len(pending)
	}

	return result, nil
}

// flushDeletions appends pending to the deletions file so they survive
// even if a later step in this export run fails before clearing them.
func flushDeletions(dir string, pending []domain.Deletion) error {
	if len(pending) == 0 {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, sync.DeletionsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, d := range pending {
		line, err := json.Marshal(struct {
			Table     string `json:"table"`
			ID        string `json:"id"`
			DeletedAt string `json:"deleted_at"`
		}{Table: d.Table, ID: d.RowID, DeletedAt: d.DeletedAt.Format("2006-01-02T15:04:05.999999999Z07:00")})
		if err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return f.Sync()
}

// exportTable streams one table's rows to dir/<table>.jsonl, ordered
// by id, writing to a temp file and renaming it into place so readers
// never observe a partial body.
func exportTable(ctx context.Context, db *sql.DB, dir, table string) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT * FROM `+table+` ORDER BY id`) // #nosec G201 -- table is whitelist-validated above
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	count := 0
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, err
		}
		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			record[col] = normalizeValue(values[i])
		}
		line, err := json.Marshal(record)
		if err != nil {
			return 0, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if count == 0 {
		existing, err := countExistingLines(filepath.Join(dir, table+".jsonl"))
		if err != nil {
			return 0, err
		}
		if existing > 0 {
			return 0, fmt.Errorf("refusing to export empty %s over an existing file with %d rows", table, existing)
		}
	}

	if err := writeFileAtomic(dir, table+".jsonl", buf.Bytes()); err != nil {
		return 0, err
	}
	return count, nil
}

// countExistingLines counts non-blank lines in an already-exported
// JSONL file, guarding against clobbering real data with a spuriously
// empty read (a missing file counts as zero rows, not an error).
func countExistingLines(path string) (int, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a whitelist-validated table name
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	count := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
	}
	return count, nil
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// writeFileAtomic writes data to a temp file under dir then renames it
// over finalName, so a concurrent reader never sees a half-written
// body (the same create-write-sync-rename idiom the daemon registry
// uses for its own JSON file).
func writeFileAtomic(dir, finalName string, data []byte) error {
	tmp, err := os.CreateTemp(dir, finalName+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, finalName))
}
