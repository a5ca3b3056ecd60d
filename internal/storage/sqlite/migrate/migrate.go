// Package migrate implements C2, the migration runner: it scans a
// directory of numbered NNN_name.sql / NNN_name_rollback.sql pairs,
// compares them against the migrations ledger table, and applies
// pending forward scripts transactionally in order.
package migrate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Migration is one discovered numbered script pair.
type Migration struct {
	Number   int
	Name     string // NNN_name, without extension
	Forward  string // path to NNN_name.sql
	Rollback string // path to NNN_name_rollback.sql, "" if none
}

var nameRe = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Discover scans dir for forward migration scripts and pairs each with
// its rollback script if present, sorted by number.
func Discover(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	byNumber := map[int]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := nameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(m[2], "_rollback")
		full := fmt.Sprintf("%03d_%s", num, base)

		mig, ok := byNumber[num]
		if !ok {
			mig = &Migration{Number: num, Name: full}
			byNumber[num] = mig
		}
		path := filepath.Join(dir, e.Name())
		if strings.HasSuffix(m[2], "_rollback") {
			mig.Rollback = path
		} else {
			mig.Forward = path
		}
	}

	out := make([]Migration, 0, len(byNumber))
	for _, m := range byNumber {
		if m.Forward == "" {
			continue // a lone rollback file with no forward script is not a migration
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Runner applies migrations against a *sql.DB, tracking the applied
// set in the migrations ledger table (created by the baseline schema).
type Runner struct {
	DB            *sql.DB
	MigrationsDir string
	LockPath      string // cross-process advisory lock path, e.g. alongside the db file
}

// Pending returns the migrations not yet recorded in the ledger, in
// application order. Used by --dry-run.
func (r *Runner) Pending() ([]Migration, error) {
	all, err := Discover(r.MigrationsDir)
	if err != nil {
		return nil, err
	}
	applied, err := r.appliedSet()
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range all {
		if !applied[m.Name] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func (r *Runner) appliedSet() (map[string]bool, error) {
	rows, err := r.DB.Query(`SELECT name FROM migrations`)
	if err != nil {
		return nil, fmt.Errorf("reading migrations ledger: %w", err)
	}
	defer rows.Close()

	set := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, rows.Err()
}

// Run applies every pending migration in order. Each migration is one
// transaction containing the script plus the ledger insert; failure
// rolls the whole transaction back and stops. Re-running with no
// pending scripts is a no-op (idempotent), per spec 4.1.
func (r *Runner) Run() error {
	return r.withLock(func() error {
		pending, err := r.Pending()
		if err != nil {
			return err
		}
		for _, m := range pending {
			if err := r.apply(m); err != nil {
				return fmt.Errorf("applying migration %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

func (r *Runner) apply(m Migration) error {
	script, err := os.ReadFile(m.Forward)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	// SQLite can't toggle foreign_keys inside a transaction; disable it
	// for the duration of schema changes, matching the teacher's own
	// migration runner.
	if _, err := r.DB.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer r.DB.Exec(`PRAGMA foreign_keys = ON`)

	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(string(script)); err != nil {
		return fmt.Errorf("executing script: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO migrations (name, applied_at) VALUES (?, ?)`,
		m.Name, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	committed = true
	return nil
}

// Rollback undoes exactly the last applied migration by running its
// rollback script and removing its ledger entry.
func (r *Runner) Rollback() error {
	return r.withLock(func() error {
		var name string
		err := r.DB.QueryRow(`SELECT name FROM migrations ORDER BY applied_at DESC, name DESC LIMIT 1`).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("no applied migrations to roll back")
		}
		if err != nil {
			return fmt.Errorf("reading last migration: %w", err)
		}

		all, err := Discover(r.MigrationsDir)
		if err != nil {
			return err
		}
		var target *Migration
		for i := range all {
			if all[i].Name == name {
				target = &all[i]
				break
			}
		}
		if target == nil || target.Rollback == "" {
			return fmt.Errorf("migration %s has no rollback script", name)
		}

		script, err := os.ReadFile(target.Rollback)
		if err != nil {
			return fmt.Errorf("reading rollback script: %w", err)
		}

		if _, err := r.DB.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
			return fmt.Errorf("disabling foreign keys: %w", err)
		}
		defer r.DB.Exec(`PRAGMA foreign_keys = ON`)

		tx, err := r.DB.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		committed := false
		defer func() {
			if !committed {
				_ = tx.Rollback()
			}
		}()

		if _, err := tx.Exec(string(script)); err != nil {
			return fmt.Errorf("executing rollback script: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM migrations WHERE name = ?`, name); err != nil {
			return fmt.Errorf("removing ledger entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing rollback: %w", err)
		}
		committed = true
		return nil
	})
}

// withLock serializes migration runs across processes using an
// advisory file lock, the same pattern the daemon registry uses for
// its registry.json (flock-guarded read-modify-write), mirroring the
// teacher's BEGIN EXCLUSIVE cross-process serialization intent.
func (r *Runner) withLock(fn func() error) error {
	if r.LockPath == "" {
		return fn()
	}
	fl := flock.New(r.LockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}
