// Package watch implements C12: a debounced filesystem watcher over a
// sync export directory that calls back once a burst of writes has
// settled, so an external git checkout/pull doesn't trigger one import
// per file it touches.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jayminwest/kotadb-sub013/internal/logging"
	"github.com/jayminwest/kotadb-sub013/internal/sync"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher debounces changes to the .jsonl bodies of an export
// directory (ignoring the deletions log itself) and invokes onChanged
// once the burst settles.
type Watcher struct {
	dir       string
	onChanged func()
	debounce  time.Duration

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	fsWatcher  *fsnotify.Watcher
	debouncer  *debouncer
	pollTicker *time.Ticker
	lastSeen   map[string]time.Time
}

// NewWatcher creates a watcher over dir with the spec-mandated 100ms
// default debounce window; onChanged is called (from a background
// goroutine) after a quiet period following one or more relevant
// writes.
func NewWatcher(dir string, onChanged func()) *Watcher {
	return &Watcher{
		dir:       dir,
		onChanged: onChanged,
		debounce:  defaultDebounce,
		lastSeen:  make(map[string]time.Time),
	}
}

// Start begins watching; calling Start on an already-started Watcher
// is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.debouncer = newDebouncer(w.debounce, w.onChanged)

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warnf("sync-watch", "fsnotify.NewWatcher failed (%v), falling back to polling", err)
		w.startPolling(runCtx)
		w.started = true
		return nil
	}
	if err := fsWatcher.Add(w.dir); err != nil {
		_ = fsWatcher.Close()
		logging.Warnf("sync-watch", "watching %s failed (%v), falling back to polling", w.dir, err)
		w.startPolling(runCtx)
		w.started = true
		return nil
	}

	w.fsWatcher = fsWatcher
	w.wg.Add(1)
	go w.runFsnotify(runCtx)
	w.started = true
	return nil
}

// Stop halts watching; calling Stop on a non-started or already-
// stopped Watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}
	w.cancel()
	w.wg.Wait()
	if w.debouncer != nil {
		w.debouncer.Cancel()
	}
	if w.pollTicker != nil {
		w.pollTicker.Stop()
	}
	var err error
	if w.fsWatcher != nil {
		err = w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.started = false
	return err
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.relevant(event.Name) {
				logging.Debugf("sync-watch", "change detected: %s", event.Name)
				w.debouncer.Trigger()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("sync-watch", "watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// startPolling is the fallback path when fsnotify itself cannot be
// established; it re-stats every .jsonl file in dir on a fixed
// interval.
func (w *Watcher) startPolling(ctx context.Context) {
	w.pollTicker = time.NewTicker(2 * time.Second)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.pollTicker.C:
				w.pollOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) pollOnce() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Warnf("sync-watch", "polling %s: %v", w.dir, err)
		return
	}
	changed := false
	for _, entry := range entries {
		name := entry.Name()
		if !w.relevant(filepath.Join(w.dir, name)) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if last, ok := w.lastSeen[name]; !ok || !last.Equal(info.ModTime()) {
			w.lastSeen[name] = info.ModTime()
			changed = true
		}
	}
	if changed {
		w.debouncer.Trigger()
	}
}

// relevant reports whether path is a .jsonl body file this watcher
// cares about; the deletions log is excluded since its own writes are
// driven by the exporter itself, not an external change worth
// re-importing for.
func (w *Watcher) relevant(path string) bool {
	base := filepath.Base(path)
	if base == sync.DeletionsFileName {
		return false
	}
	return strings.HasSuffix(base, ".jsonl")
}
