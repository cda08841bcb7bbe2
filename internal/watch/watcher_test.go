package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/pathsync"
)

type fakeEvent struct {
	path  string
	event notify.Event
}

func (f fakeEvent) Event() notify.Event { return f.event }
func (f fakeEvent) Path() string        { return f.path }
func (f fakeEvent) Sys() interface{}    { return nil }

func newTestWatcher(t *testing.T, onSync SyncFunc) *Watcher {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	w := NewWatcher(root, pathsync.NewIgnoreList(root), onSync)
	w.SetDebounce(30 * time.Millisecond)
	return w
}

func waitFire(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.fire:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "debounce never fired")
	}
}

func TestWatcherDebounceCoalescesBurst(t *testing.T) {
	w := newTestWatcher(t, nil)

	// a burst of events across several paths produces exactly one fire
	for _, name := range []string{"a.txt", "b.txt", "a.txt", "c.txt"} {
		w.handleEvent(fakeEvent{path: filepath.Join(w.root, name), event: notify.Write})
	}

	waitFire(t, w)
	paths := w.drainTouched()
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.txt"}, paths)

	// no second fire is pending
	select {
	case <-w.fire:
		t.Fatal("debounce fired twice for one burst")
	case <-time.After(3 * w.debounce):
	}
}

func TestWatcherEventRestartsWindow(t *testing.T) {
	w := newTestWatcher(t, nil)
	w.SetDebounce(80 * time.Millisecond)

	// keep the tree noisy for longer than one debounce window
	for i := 0; i < 3; i++ {
		w.handleEvent(fakeEvent{path: filepath.Join(w.root, "busy.txt"), event: notify.Write})
		time.Sleep(50 * time.Millisecond)
		select {
		case <-w.fire:
			t.Fatal("fired while events were still arriving")
		default:
		}
	}

	waitFire(t, w)
	assert.Equal(t, []string{"busy.txt"}, w.drainTouched())
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	w := newTestWatcher(t, nil)

	w.handleEvent(fakeEvent{path: filepath.Join(w.root, ".driftsync", "metadata.json"), event: notify.Write})
	w.handleEvent(fakeEvent{path: filepath.Join(w.root, "trace.log"), event: notify.Write})

	select {
	case <-w.fire:
		t.Fatal("ignored paths must not arm the debounce")
	case <-time.After(3 * w.debounce):
	}
	assert.Empty(t, w.drainTouched())
}

func TestWatcherRunSyncsOnRealWrites(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][]string
	)
	synced := make(chan struct{}, 1)
	w := newTestWatcher(t, func(ctx context.Context, touched []string) error {
		mu.Lock()
		calls = append(calls, touched)
		mu.Unlock()
		select {
		case synced <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the subscription a moment to attach
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(w.root, "edited.txt"), []byte("change"), 0o644))

	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "sync callback never ran")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "edited.txt")
}

func TestWatcherSyncErrorKeepsLoopAlive(t *testing.T) {
	synced := make(chan struct{}, 2)
	w := newTestWatcher(t, func(ctx context.Context, touched []string) error {
		synced <- struct{}{}
		return assert.AnError
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(w.root, "first.txt"), []byte("1"), 0o644))
	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "first sync never ran")
	}

	// the loop survives the failed callback and handles the next burst
	require.NoError(t, os.WriteFile(filepath.Join(w.root, "second.txt"), []byte("2"), 0o644))
	select {
	case <-synced:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "loop died after sync error")
	}

	cancel()
	<-done
}
