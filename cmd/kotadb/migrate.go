package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jayminwest/kotadb-sub013/internal/config"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect database schema migrations",
	Long: `Applies pending schema migrations to the kotadb database, in
order, each inside its own transaction.

Without a flag, runs every pending migration. --dry-run lists what
would run without running it. --rollback reverts the most recently
applied migration.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		rollback, _ := cmd.Flags().GetBool("rollback")

		dbPath := filepath.Join(config.DataRoot(), "kotadb.db")
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		runner := &migrate.Runner{
			DB:            db,
			MigrationsDir: migrationsDir(),
			LockPath:      dbPath + ".migrate.lock",
		}

		switch {
		case dryRun:
			pending, err := runner.Pending()
			if err != nil {
				return fmt.Errorf("listing pending migrations: %w", err)
			}
			if len(pending) == 0 {
				fmt.Println("no pending migrations")
				return nil
			}
			for _, m := range pending {
				fmt.Printf("pending: %03d_%s\n", m.Number, m.Name)
			}
			return nil
		case rollback:
			if err := runner.Rollback(); err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			fmt.Println("rolled back last migration")
			return nil
		default:
			if err := runner.Run(); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			fmt.Println("migrations up to date")
			return nil
		}
	},
}

// migrationsDir locates the directory of numbered migration scripts.
// KOTA_MIGRATIONS_DIR overrides it for installs that ship the
// migrations directory somewhere other than the source checkout.
func migrationsDir() string {
	if d := os.Getenv("KOTA_MIGRATIONS_DIR"); d != "" {
		return d
	}
	return filepath.Join("internal", "storage", "sqlite", "migrations")
}

func registerMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "list pending migrations without applying them")
	cmd.Flags().Bool("rollback", false, "roll back the most recently applied migration")
}
