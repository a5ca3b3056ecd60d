// Package config wires KotaDB's environment and file configuration
// together using viper. Environment variables always take precedence
// over a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jayminwest/kotadb-sub013/internal/logging"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Must be called
// once at process startup before Get* accessors are used.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "kotadb.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
				break
			}
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			p := filepath.Join(configDir, "kotadb", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
			}
		}
	}

	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			p := filepath.Join(home, ".kotadb", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				v.SetConfigFile(p)
				configFileSet = true
			}
		}
	}

	// KOTA_-prefixed env vars take precedence over the config file.
	v.SetEnvPrefix("KOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Non-KOTA_-prefixed environment variables named explicitly in the
	// external-interfaces surface.
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("git.base-url", "KOTA_GIT_BASE_URL")
	_ = v.BindEnv("allowed-origins", "KOTA_ALLOWED_ORIGINS")
	_ = v.BindEnv("github.app-id", "GITHUB_APP_ID")
	_ = v.BindEnv("github.private-key", "GITHUB_APP_PRIVATE_KEY")
	_ = v.BindEnv("github.webhook-secret", "GITHUB_WEBHOOK_SECRET")
	_ = v.BindEnv("auto-reindex.threshold-minutes", "KOTADB_AUTO_REINDEX_THRESHOLD_MINUTES")
	_ = v.BindEnv("log-level", "LOG_LEVEL")

	v.SetDefault("port", "8080")
	v.SetDefault("data-root", defaultDataRoot())
	v.SetDefault("allowed-origins", "http://localhost:*,http://127.0.0.1:*")
	v.SetDefault("git.base-url", "https://github.com")
	v.SetDefault("log-level", "info")

	v.SetDefault("workers.count", 3)
	v.SetDefault("workers.max-retries", 5)
	v.SetDefault("workers.retry-backoff", "2s")

	v.SetDefault("auto-reindex.threshold-minutes", 60)
	v.SetDefault("auto-reindex.rate-limit-window-minutes", 30)

	v.SetDefault("sync.watch-debounce", "100ms")

	v.SetDefault("mcp.protocol-version", "2025-06-18")

	v.SetDefault("rate-limit.hourly", 1000)
	v.SetDefault("rate-limit.daily", 10000)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		logging.Debugf("config", "loaded config from %s", v.ConfigFileUsed())
	} else {
		logging.Debugf("config", "no kotadb.yaml found; using defaults and environment variables")
	}

	return nil
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kotadb"
	}
	return filepath.Join(home, ".kotadb")
}

func ensureInitialized() {
	if v == nil {
		_ = Initialize()
	}
}

// DataRoot returns the root directory for the store file and export directory.
func DataRoot() string {
	ensureInitialized()
	return v.GetString("data-root")
}

// Port returns the configured HTTP port.
func Port() string {
	ensureInitialized()
	return v.GetString("port")
}

// AllowedOrigins returns the comma-separated allowed-origin patterns,
// split and trimmed.
func AllowedOrigins() []string {
	ensureInitialized()
	raw := v.GetString("allowed-origins")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GitBaseURL returns the base URL used to resolve a repository's clone URL.
func GitBaseURL() string {
	ensureInitialized()
	return v.GetString("git.base-url")
}

// GitHubAppID returns the configured GitHub App id, if any.
func GitHubAppID() string {
	ensureInitialized()
	return v.GetString("github.app-id")
}

// GitHubAppPrivateKey returns the configured GitHub App PEM private key.
func GitHubAppPrivateKey() string {
	ensureInitialized()
	return v.GetString("github.private-key")
}

// GitHubWebhookSecret returns the configured webhook HMAC secret.
func GitHubWebhookSecret() string {
	ensureInitialized()
	return v.GetString("github.webhook-secret")
}

// WorkerCount returns the configured worker pool size.
func WorkerCount() int {
	ensureInitialized()
	n := v.GetInt("workers.count")
	if n <= 0 {
		return 1
	}
	return n
}

// WorkerMaxRetries returns the maximum retry count before a job is
// marked permanently failed.
func WorkerMaxRetries() int {
	ensureInitialized()
	return v.GetInt("workers.max-retries")
}

// WorkerRetryBackoff returns the base exponential-backoff duration.
func WorkerRetryBackoff() time.Duration {
	ensureInitialized()
	return v.GetDuration("workers.retry-backoff")
}

// AutoReindexThreshold returns the staleness threshold before a
// repository is eligible for auto-reindex.
func AutoReindexThreshold() time.Duration {
	ensureInitialized()
	return time.Duration(v.GetInt("auto-reindex.threshold-minutes")) * time.Minute
}

// AutoReindexRateLimitWindow returns the minimum interval between
// auto-reindex enqueues for the same repository.
func AutoReindexRateLimitWindow() time.Duration {
	ensureInitialized()
	return time.Duration(v.GetInt("auto-reindex.rate-limit-window-minutes")) * time.Minute
}

// SyncWatchDebounce returns the debounce window for the sync watcher.
func SyncWatchDebounce() time.Duration {
	ensureInitialized()
	return v.GetDuration("sync.watch-debounce")
}

// MCPProtocolVersion returns the accepted MCP-Protocol-Version value.
func MCPProtocolVersion() string {
	ensureInitialized()
	return v.GetString("mcp.protocol-version")
}

// RateLimitHourly returns the default hourly request budget per tier.
func RateLimitHourly() int {
	ensureInitialized()
	return v.GetInt("rate-limit.hourly")
}

// RateLimitDaily returns the default daily request budget per tier.
func RateLimitDaily() int {
	ensureInitialized()
	return v.GetInt("rate-limit.daily")
}

// LogLevel returns the configured log level string.
func LogLevel() string {
	ensureInitialized()
	return v.GetString("log-level")
}
