package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jayminwest/kotadb-sub013/internal/config"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "kotadb",
	Short: "KotaDB: a local code-intelligence daemon",
	Long: `KotaDB indexes a git repository's symbols, references, and
dependencies into an embedded store and serves them over MCP
(Streamable HTTP and stdio) and a small REST surface.

Without a subcommand, kotadb runs the daemon (equivalent to
"kotadb serve").`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		logging.SetLevel(parseLevel(config.LogLevel()))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func parseLevel(s string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logging.Debug
	case "warn", "warning":
		return logging.Warn
	case "error":
		return logging.Error
	default:
		return logging.Info
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core commands:"})
	serveCmd.GroupID = "core"
	migrateCmd.GroupID = "core"

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	registerServeFlags(serveCmd)
	registerMigrateFlags(migrateCmd)
}

// Execute runs the root command; called by main.
func Execute() error {
	return rootCmd.Execute()
}
