// Package importer implements C11: loading an export directory back
// into the embedded store, applying deletions before upserting fresh
// bodies so a resurrected row from a stale body can never outlive a
// recorded deletion.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/sync"
)

const (
	batchSize        = 200
	maxDeletionsSize = 10 << 20 // 10 MiB
	maxMalformedRate = 0.20
)

// TableError is one table's import failure; the importer moves on to
// the next table rather than aborting the whole run.
type TableError struct {
	Table string
	Error string
}

// Result is the outcome of one Import call.
type Result struct {
	DeletedCount   int
	Errors         []TableError
	SecurityIssues []string
}

type deletionEntry struct {
	Table     string `json:"table"`
	ID        string `json:"id"`
	DeletedAt string `json:"deleted_at"`
}

// Import loads dir's whitelisted table bodies (defaulting to
// sync.Tables when tables is nil) into db: deletions first, then a
// streamed upsert per table, each inside its own transaction.
func Import(ctx context.Context, db *sql.DB, dir string, tables []string) (*Result, error) {
	if tables == nil {
		tables = sync.Tables
	}
	for _, t := range tables {
		if !sync.Allowed(t) {
			return nil, kotaerr.New(kotaerr.Security, fmt.Sprintf("table %q is not in the sync import whitelist", t))
		}
	}

	result := &Result{}

	deletions, issues, err := loadDeletions(filepath.Join(dir, sync.DeletionsFileName))
	if err != nil {
		return nil, err
	}
	result.SecurityIssues = append(result.SecurityIssues, issues...)

	deleted, err := applyDeletions(ctx, db, deletions)
	if err != nil {
		return nil, fmt.Errorf("importer: applying deletions: %w", err)
	}
	result.DeletedCount = deleted

	for _, table := range tables {
		if err := importTable(ctx, db, dir, table); err != nil {
			result.Errors = append(result.Errors, TableError{Table: table, Error: err.Error()})
		}
	}

	return result, nil
}

// loadDeletions validates every entry in path (structure, whitelisted
// table, ISO-8601 timestamp, non-empty id); malformed lines are
// skipped, but the whole file is rejected as a security issue if it is
// oversized or more than 20% of its entries are malformed.
func loadDeletions(path string) ([]deletionEntry, []string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixed name within the caller-supplied export directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("importer: reading deletions: %w", err)
	}
	if len(data) > maxDeletionsSize {
		return nil, nil, kotaerr.New(kotaerr.Security, fmt.Sprintf("deletions file exceeds %d bytes", maxDeletionsSize))
	}

	var valid []deletionEntry
	total, malformed := 0, 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var entry deletionEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			malformed++
			continue
		}
		if !sync.Allowed(entry.Table) || entry.ID == "" {
			malformed++
			continue
		}
		if _, err := time.Parse(time.RFC3339, entry.DeletedAt); err != nil {
			malformed++
			continue
		}
		valid = append(valid, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("importer: scanning deletions: %w", err)
	}

	if total > 0 && float64(malformed)/float64(total) > maxMalformedRate {
		return nil, nil, kotaerr.New(kotaerr.Security, fmt.Sprintf("deletions file has %d/%d malformed entries, exceeding the %.0f%% threshold", malformed, total, maxMalformedRate*100))
	}

	var issues []string
	if malformed > 0 {
		issues = append(issues, fmt.Sprintf("skipped %d malformed deletion entries", malformed))
	}
	return valid, issues, nil
}

// applyDeletions runs a batched, parameterized DELETE per table.
func applyDeletions(ctx context.Context, db *sql.DB, entries []deletionEntry) (int, error) {
	byTable := map[string][]string{}
	for _, e := range entries {
		byTable[e.Table] = append(byTable[e.Table], e.ID)
	}

	deleted := 0
	for table, ids := range byTable {
		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			batch := ids[start:end]

			placeholders := make([]string, len(batch))
			args := make([]interface{}, len(batch))
			for i, id := range batch {
				placeholders[i] = "?"
				args[i] = id
			}
			query := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, table, joinPlaceholders(placeholders)) // #nosec G201 -- table is whitelist-validated
			res, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				return deleted, fmt.Errorf("table %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			deleted += int(n)
		}
	}
	return deleted, nil
}

// importTable streams dir/<table>.jsonl, upserting rows by id in
// fixed-size batches inside a single transaction for the table.
func importTable(ctx context.Context, db *sql.DB, dir, table string) error {
	path := filepath.Join(dir, table+".jsonl")
	f, err := os.Open(path) // #nosec G304 -- table is whitelist-validated, dir is caller-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing exported for this table yet
		}
		return err
	}
	defer f.Close()

	// Rows come from a peer's <table>.jsonl, which spec 4.3's
	// distributed-reconciliation use case treats as untrusted: only
	// `table` is whitelist-checked above, so each row's JSON keys are
	// validated against the table's real columns here before they ever
	// reach a generated SQL statement.
	validColumns, err := tableColumns(ctx, db, table)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var batch []map[string]interface{}
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row map[string]interface{}
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("decoding row: %w", err)
		}
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := upsertBatch(ctx, tx, table, batch, validColumns); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		if err := upsertBatch(ctx, tx, table, batch, validColumns); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// tableColumns reads table's real column names via PRAGMA table_info,
// the only way to introspect a SQLite schema without hand-maintaining
// a parallel column list per whitelisted table.
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table)) // #nosec G201 -- table is whitelist-validated
	if err != nil {
		return nil, fmt.Errorf("reading schema for table %s: %w", table, err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning schema for table %s: %w", table, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema for table %s: %w", table, err)
	}
	return cols, nil
}

// upsertBatch inserts every row in one multi-VALUES statement, using
// the union of keys across the batch as the column list (defaulting
// absent keys to NULL) so a ragged export still loads. Every column
// name is checked against validColumns (table's real schema) before
// it is spliced into the generated SQL text: the keys come from
// untrusted peer JSON, not from the exporter's own whitelist.
func upsertBatch(ctx context.Context, tx *sql.Tx, table string, batch []map[string]interface{}, validColumns map[string]bool) error {
	cols := unionKeys(batch)
	if len(cols) == 0 {
		return nil
	}
	for _, col := range cols {
		if !validColumns[col] {
			return kotaerr.New(kotaerr.Security, fmt.Sprintf("table %s: %q is not a column of this table", table, col))
		}
	}

	valuesSQL := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*len(cols))
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	rowSQL := "(" + joinPlaceholders(placeholders) + ")"

	for i, row := range batch {
		valuesSQL[i] = rowSQL
		for _, col := range cols {
			args = append(args, row[col])
		}
	}

	updateSQL := make([]string, 0, len(cols))
	for _, col := range cols {
		if col == "id" {
			continue
		}
		updateSQL = append(updateSQL, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES %s ON CONFLICT(id) DO UPDATE SET %s`,
		table, joinPlaceholders(cols), joinPlaceholders(valuesSQL), joinPlaceholders(updateSQL),
	) // #nosec G201 -- table is whitelist-validated and every column in cols was just checked against validColumns
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func unionKeys(batch []map[string]interface{}) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range batch {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func joinPlaceholders(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
