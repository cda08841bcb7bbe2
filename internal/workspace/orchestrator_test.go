package workspace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedRoots(names ...string) []ProjectRoot {
	roots := make([]ProjectRoot, 0, len(names))
	for _, name := range names {
		roots = append(roots, ProjectRoot{Path: "/tmp/" + name, Name: name})
	}
	return roots
}

func statusByProject(results []ProjectResult) map[string]ProjectStatus {
	out := make(map[string]ProjectStatus, len(results))
	for _, r := range results {
		out[r.Project] = r.Status
	}
	return out
}

func TestSyncAllAllSucceed(t *testing.T) {
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		return "synced", 0, nil
	})

	results, err := o.SyncAll(context.Background(), namedRoots("a", "b", "c"), SyncAllOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, StatusSuccess, r.Status)
		assert.Equal(t, "synced", r.Message)
	}
	// results come back sorted by project
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].Project, results[1].Project, results[2].Project})
}

func TestSyncAllEmptyAfterFilter(t *testing.T) {
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		t.Error("sync must not run for filtered-out projects")
		return "", 0, nil
	})

	results, err := o.SyncAll(context.Background(), namedRoots("a"), SyncAllOptions{Include: "nomatch-*"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSyncAllBoundedWorkers(t *testing.T) {
	var current, peak int32
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return "", 0, nil
	})

	_, err := o.SyncAll(context.Background(),
		namedRoots("a", "b", "c", "d", "e", "f"),
		SyncAllOptions{Workers: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSyncAllFileErrorsReportedAsFailed(t *testing.T) {
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		if root.Name == "broken" {
			return "", 3, nil
		}
		return "ok", 0, nil
	})

	results, err := o.SyncAll(context.Background(), namedRoots("broken", "fine"),
		SyncAllOptions{})
	require.NoError(t, err)

	statuses := statusByProject(results)
	assert.Equal(t, StatusFailed, statuses["broken"])
	assert.Equal(t, StatusSuccess, statuses["fine"])
}

func TestSyncAllContinuesPastFailureByDefault(t *testing.T) {
	var synced int32
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		if root.Name == "a" {
			return "", 0, errors.New("boom")
		}
		atomic.AddInt32(&synced, 1)
		return "ok", 0, nil
	})

	// zero-value options: the failing project is reported, the rest still sync
	results, err := o.SyncAll(context.Background(), namedRoots("a", "b", "c"),
		SyncAllOptions{Workers: 1})
	require.NoError(t, err)
	require.Len(t, results, 3)

	statuses := statusByProject(results)
	assert.Equal(t, StatusError, statuses["a"])
	assert.Equal(t, StatusSuccess, statuses["b"])
	assert.Equal(t, StatusSuccess, statuses["c"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&synced))
}

func TestSyncAllPipelineErrorReportedAsError(t *testing.T) {
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		return "", 0, errors.New("provider unreachable")
	})

	results, err := o.SyncAll(context.Background(), namedRoots("a"),
		SyncAllOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Message, "provider unreachable")
}

func TestSyncAllAbortsOnFirstFailure(t *testing.T) {
	var started int32
	release := make(chan struct{})
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		atomic.AddInt32(&started, 1)
		if root.Name == "a" {
			return "", 0, errors.New("boom")
		}
		// the rest block until cancelled
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-release:
			return "ok", 0, nil
		}
	})
	defer close(release)

	results, err := o.SyncAll(context.Background(), namedRoots("a", "b", "c"),
		SyncAllOptions{Workers: 3, AbortOnError: true})
	assert.ErrorIs(t, err, ErrBatchAborted)
	assert.NotEmpty(t, results)
	assert.Equal(t, StatusError, statusByProject(results)["a"])
}

func TestSyncAllTimeoutReportedDistinctly(t *testing.T) {
	var mu sync.Mutex
	sawCancel := false
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		if root.Name == "slow" {
			<-ctx.Done()
			mu.Lock()
			sawCancel = true
			mu.Unlock()
			return "", 0, ctx.Err()
		}
		return "ok", 0, nil
	})

	results, err := o.SyncAll(context.Background(), namedRoots("fast", "slow"),
		SyncAllOptions{ProjectTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	statuses := statusByProject(results)
	assert.Equal(t, StatusSuccess, statuses["fast"])
	assert.Equal(t, StatusTimeout, statuses["slow"])

	// the abandoned pipeline observed its context being cancelled
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sawCancel
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncAllSequentialWithOneWorker(t *testing.T) {
	var order []string
	var mu sync.Mutex
	o := NewOrchestrator(func(ctx context.Context, root ProjectRoot) (string, int, error) {
		mu.Lock()
		order = append(order, root.Name)
		mu.Unlock()
		return "", 0, nil
	})

	_, err := o.SyncAll(context.Background(), namedRoots("a", "b", "c"),
		SyncAllOptions{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}
