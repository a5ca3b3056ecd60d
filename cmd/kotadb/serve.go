package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jayminwest/kotadb-sub013/internal/auth"
	"github.com/jayminwest/kotadb-sub013/internal/config"
	"github.com/jayminwest/kotadb-sub013/internal/daemon"
	"github.com/jayminwest/kotadb-sub013/internal/extractor"
	"github.com/jayminwest/kotadb-sub013/internal/ghapp"
	"github.com/jayminwest/kotadb-sub013/internal/gitfetch"
	"github.com/jayminwest/kotadb-sub013/internal/jobs"
	"github.com/jayminwest/kotadb-sub013/internal/logging"
	"github.com/jayminwest/kotadb-sub013/internal/mcp"
	"github.com/jayminwest/kotadb-sub013/internal/storage/sqlite"
	httptransport "github.com/jayminwest/kotadb-sub013/internal/transport/http"
	"github.com/jayminwest/kotadb-sub013/internal/transport/stdio"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kotadb daemon",
	Long: `Starts the kotadb daemon: opens the local store, starts the
indexing worker pool, and serves MCP over Streamable HTTP (and,
with --stdio, over stdin/stdout instead).`,
	RunE: runServe,
}

func registerServeFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	cmd.Flags().String("port", "", "HTTP port to listen on (overrides config/PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	useStdio, _ := cmd.Flags().GetBool("stdio")
	portFlag, _ := cmd.Flags().GetString("port")

	dbPath := filepath.Join(config.DataRoot(), "kotadb.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return fmt.Errorf("creating data root: %w", err)
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	pipeline := extractor.NewPipeline()
	fetcher := gitfetch.New(config.GitBaseURL(), buildTokenSource())
	tracker := jobs.NewTracker(store)
	pool := jobs.NewPool(store, store, fetcher, pipeline, filepath.Join(config.DataRoot(), "work"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool.Start(ctx)
	defer pool.Stop()

	policy := jobs.NewAutoReindexPolicy(store, tracker)
	go runAutoReindexSweeps(ctx, policy)

	deps := buildDeps(store, tracker)
	dispatcher := mcp.NewDispatcher(deps, "kotadb", version)

	reg, err := daemon.NewRegistry()
	if err != nil {
		logging.Warnf("serve", "opening daemon registry: %v", err)
	}

	if useStdio {
		return runStdio(ctx, dispatcher)
	}
	return runHTTP(ctx, store, dispatcher, tracker, portFlag, reg)
}

// buildTokenSource wires C4's GitHub App token exchange only when the
// App credentials are configured; most local setups index over a bare
// local path or an unauthenticated remote and need no token source.
func buildTokenSource() gitfetch.TokenSource {
	appID := config.GitHubAppID()
	pemBytes := config.GitHubAppPrivateKey()
	if appID == "" || pemBytes == "" {
		return nil
	}
	client, err := ghapp.NewClient(appID, []byte(pemBytes), "https://api.github.com")
	if err != nil {
		logging.Warnf("serve", "GitHub App client disabled: %v", err)
		return nil
	}
	return client
}

func runAutoReindexSweeps(ctx context.Context, policy *jobs.AutoReindexPolicy) {
	interval := config.AutoReindexRateLimitWindow()
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := policy.Sweep(ctx, "local"); err != nil {
				logging.Warnf("serve", "auto-reindex sweep: %v", err)
			}
		}
	}
}

// stdioCaller is the fixed identity for every request on the stdio
// transport: per spec 4.6, stdio has no header validation and
// authentication is implicit in the process's own uid, so there is no
// per-connection auth gate to run.
var stdioCaller = mcp.CallerContext{OwnerScope: "local", KeyID: "stdio", Tier: "local"}

func runStdio(ctx context.Context, dispatcher *mcp.Dispatcher) error {
	srv := stdio.NewServer(dispatcher, stdioCaller, os.Stdin, os.Stdout)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, store *sqlite.Store, dispatcher *mcp.Dispatcher, tracker *jobs.Tracker, portFlag string, reg *daemon.Registry) error {
	keyStore := auth.ParseStaticKeyStore(os.Getenv("KOTA_API_KEYS"))
	srv := httptransport.NewServer(store.DB(), dispatcher, tracker, store, store, keyStore)

	port := portFlag
	if port == "" {
		port = config.Port()
	}
	addr := ":" + port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if reg != nil {
		entry := daemon.Entry{
			WorkspacePath: config.DataRoot(),
			HTTPAddr:      "http://localhost" + addr,
			DatabasePath:  store.Path(),
			PID:           os.Getpid(),
			Version:       version,
			StartedAt:     time.Now().UTC(),
		}
		if err := reg.Register(entry); err != nil {
			logging.Warnf("serve", "registering daemon: %v", err)
		}
		defer func() {
			_ = reg.Unregister(entry.WorkspacePath, entry.PID)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("serve", "listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
