// Package daemon implements the daemon registry: a supplemented
// feature tracking which KotaDB daemon instance (if any) is serving a
// given workspace, so the CLI can discover a running daemon's address
// instead of starting a second one.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

// Entry describes one running daemon instance.
type Entry struct {
	WorkspacePath string    `json:"workspace_path"`
	HTTPAddr      string    `json:"http_addr"`
	DatabasePath  string    `json:"database_path"`
	PID           int       `json:"pid"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
}

// Registry manages the ~/.kotadb/registry.json file shared by every
// daemon instance on the machine, serialized with a cross-process
// file lock (C2's migration runner uses the same gofrs/flock idiom).
type Registry struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex // in-process mutex; the flock covers cross-process
}

// NewRegistry opens the registry rooted at ~/.kotadb/registry.json,
// creating the directory if necessary.
func NewRegistry() (*Registry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("daemon: resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".kotadb")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("daemon: creating registry directory: %w", err)
	}
	path := filepath.Join(dir, "registry.json")
	return &Registry{path: path, lock: flock.New(path + ".lock")}, nil
}

func (r *Registry) withLock(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("daemon: acquiring registry lock: %w", err)
	}
	defer func() { _ = r.lock.Unlock() }()

	return fn()
}

func (r *Registry) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(r.path) // #nosec G304 -- fixed path under the user's home directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupted registry just means daemons will be rediscovered.
		return nil, nil
	}
	return entries, nil
}

func (r *Registry) writeLocked(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "registry-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, r.path)
}

// Register adds or replaces the entry for entry.WorkspacePath.
func (r *Registry) Register(entry Entry) error {
	return r.withLock(func() error {
		entries, err := r.readLocked()
		if err != nil {
			return err
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.WorkspacePath != entry.WorkspacePath && e.PID != entry.PID {
				filtered = append(filtered, e)
			}
		}
		filtered = append(filtered, entry)
		return r.writeLocked(filtered)
	})
}

// Unregister removes the entry for workspacePath/pid, if present.
func (r *Registry) Unregister(workspacePath string, pid int) error {
	return r.withLock(func() error {
		entries, err := r.readLocked()
		if err != nil {
			return err
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.WorkspacePath != workspacePath && e.PID != pid {
				filtered = append(filtered, e)
			}
		}
		return r.writeLocked(filtered)
	})
}

// List returns every entry whose PID is still alive, pruning dead
// ones from the registry file as a side effect.
func (r *Registry) List() ([]Entry, error) {
	var alive []Entry
	err := r.withLock(func() error {
		entries, err := r.readLocked()
		if err != nil {
			return err
		}
		for _, e := range entries {
			if isProcessAlive(e.PID) {
				alive = append(alive, e)
			}
		}
		if len(alive) != len(entries) {
			return r.writeLocked(alive)
		}
		return nil
	})
	return alive, err
}

// Find returns the entry serving workspacePath, if any daemon holding
// that workspace is still alive.
func (r *Registry) Find(workspacePath string) (*Entry, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.WorkspacePath == workspacePath {
			return &e, nil
		}
	}
	return nil, nil
}

// Clear empties the registry. Tests must call this to avoid leaking
// state across runs.
func (r *Registry) Clear() error {
	return r.withLock(func() error { return r.writeLocked(nil) })
}

// isProcessAlive reports whether pid names a live process, using
// signal 0 which the kernel delivers to no one but still validates
// the target exists and is reachable.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
