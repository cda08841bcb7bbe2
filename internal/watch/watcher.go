// Package watch triggers the sync pipeline on local filesystem changes,
// coalescing bursts of events into a single debounced callback, with an
// optional detached daemon lifecycle managed through a pid file.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/driftsync/driftsync/internal/pathsync"
)

const (
	// DefaultDebounce is how long the tree must stay quiet before one sync
	// fires. Editors tend to rewrite files in bursts; every new event
	// restarts the window.
	DefaultDebounce = 2 * time.Second

	eventBufferSize = 64
)

// SyncFunc is invoked once per quiet period with the paths touched since the
// previous invocation (root-relative, normalized). A returned error is
// logged; it never stops the watch loop.
type SyncFunc func(ctx context.Context, touched []string) error

// Watcher observes one project root. States: Stopped -> Watching -> Stopped;
// while watching, the debounce sub-state is either idle or pending-fire.
type Watcher struct {
	root     string
	ignore   *pathsync.IgnoreList
	debounce time.Duration
	onSync   SyncFunc

	mu      sync.Mutex
	timer   *time.Timer
	touched map[string]struct{}
	fire    chan struct{}
}

func NewWatcher(root string, ignore *pathsync.IgnoreList, onSync SyncFunc) *Watcher {
	return &Watcher{
		root:     root,
		ignore:   ignore,
		debounce: DefaultDebounce,
		onSync:   onSync,
		touched:  make(map[string]struct{}),
		fire:     make(chan struct{}, 1),
	}
}

// SetDebounce overrides the quiet window. Must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run subscribes to filesystem events under the root and blocks until ctx is
// cancelled. Create, write, remove and rename events all count as changes.
func (w *Watcher) Run(ctx context.Context) error {
	events := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(w.root, "..."), events, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}
	defer notify.Stop(events)

	slog.Info("watching", "root", w.root, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			slog.Info("watcher stopped", "root", w.root)
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case <-w.fire:
			paths := w.drainTouched()
			if len(paths) == 0 {
				continue
			}
			slog.Debug("debounce elapsed, syncing", "touched", len(paths))
			if err := w.onSync(ctx, paths); err != nil {
				// a failed sync must never kill the watch loop
				slog.Error("sync callback failed", "root", w.root, "error", err)
			}
		}
	}
}

// handleEvent records the touched path and (re)starts the debounce timer.
func (w *Watcher) handleEvent(event notify.EventInfo) {
	rel, err := filepath.Rel(w.root, event.Path())
	if err != nil {
		return
	}
	relPath := pathsync.NormPath(rel)
	if w.ignore != nil && w.ignore.ShouldIgnore(relPath) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.touched[relPath] = struct{}{}
	if w.timer != nil {
		// pending fire: a new event restarts the window
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) drainTouched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.touched))
	for p := range w.touched {
		paths = append(paths, p)
	}
	w.touched = make(map[string]struct{})
	w.timer = nil
	return paths
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
