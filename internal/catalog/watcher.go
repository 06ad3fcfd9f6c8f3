package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"visioncraft/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a catalog override file hot: when the YAML changes on disk
// the merged catalog is rebuilt and swapped atomically. Readers always see
// a complete catalog, never a half-applied override.
type Watcher struct {
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
	base    *Catalog
	current *Catalog
	path    string

	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given override path. The initial
// catalog is base merged with the override when the file already exists,
// otherwise base as-is.
func NewWatcher(base *Catalog, path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:     fsw,
		base:        base,
		current:     base,
		path:        path,
		debounceDur: 200 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	if merged, err := LoadOverride(base, path); err == nil {
		w.current = merged
	}

	return w, nil
}

// Catalog returns the current merged catalog.
func (w *Watcher) Catalog() *Catalog {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the override file's directory. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors commonly replace files via rename,
	// which drops a watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryScorer).Warn("catalog watcher: watch failed for %s: %v", dir, err)
	} else {
		logging.Scorer("catalog watcher: watching %s", w.path)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-pendingC:
			pendingC = nil
			w.reload()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.NewTimer(w.debounceDur)
			pendingC = pending.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryScorer).Warn("catalog watcher: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	merged, err := LoadOverride(w.base, w.path)
	if err != nil {
		// Keep serving the previous catalog on a bad override.
		logging.Get(logging.CategoryScorer).Warn("catalog reload failed, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	w.current = merged
	w.mu.Unlock()
	logging.Scorer("catalog reloaded from %s (%d fields)", w.path, len(merged.Entries()))
}
