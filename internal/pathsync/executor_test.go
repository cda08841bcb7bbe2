package pathsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/provider"
)

func newTestExecutor(t *testing.T, mem *provider.MemoryProvider, projectID string, remote []provider.RemoteFile) *Executor {
	t.Helper()
	index := make(map[string]provider.RemoteFile, len(remote))
	for _, f := range remote {
		index[NormPath(f.Name)] = f
	}
	return &Executor{
		Provider:    mem,
		OrgID:       "org-1",
		ProjectID:   projectID,
		Root:        t.TempDir(),
		RemoteIndex: index,
		UploadDelay: time.Millisecond,
	}
}

func TestExecutorUploadDownloadDelete(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	stale := mem.Seed(projectID, "stale.txt", []byte("old"))
	incoming := mem.Seed(projectID, "incoming.txt", []byte("from remote"))

	exec := newTestExecutor(t, mem, projectID, []provider.RemoteFile{stale, incoming})
	writeTree(t, exec.Root, map[string]string{"outgoing.txt": "from local"})

	plan := &SyncPlan{
		Direction: DirectionBoth,
		Actions: []PlanItem{
			{Action: ActionUpload, Path: "outgoing.txt"},
			{Action: ActionDownload, Path: "incoming.txt"},
			{Action: ActionDeleteRemote, Path: "stale.txt"},
		},
	}

	result := exec.Execute(context.Background(), plan)
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 3, result.Synced())
	assert.False(t, result.Cancelled)

	got, err := os.ReadFile(filepath.Join(exec.Root, "incoming.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from remote", string(got))

	files, err := mem.ListFiles(context.Background(), "org-1", projectID)
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"incoming.txt", "outgoing.txt"}, names)
}

func TestExecutorDownloadCreatesParentDirs(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	nested := mem.Seed(projectID, "a/b/c.txt", []byte("deep"))

	exec := newTestExecutor(t, mem, projectID, []provider.RemoteFile{nested})
	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionDownload, Path: "a/b/c.txt"}}}

	result := exec.Execute(context.Background(), plan)
	require.Empty(t, result.Errors)

	got, err := os.ReadFile(filepath.Join(exec.Root, "a", "b", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(got))
}

func TestExecutorDeleteLocal(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"gone.txt": "remove me"})

	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionDeleteLocal, Path: "gone.txt"}}}
	result := exec.Execute(context.Background(), plan)
	require.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Deleted)
	assert.NoFileExists(t, filepath.Join(exec.Root, "gone.txt"))

	// deleting an already-absent file is not an error
	again := exec.Execute(context.Background(), plan)
	assert.Empty(t, again.Errors)
}

func TestExecutorRateLimitRetry(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")

	// fail the first two upload attempts with a rate limit, succeed on the third
	attempts := 0
	mem.SetInterceptor(func(op, key string) error {
		if op != "upload" {
			return nil
		}
		attempts++
		if attempts < 3 {
			return &provider.APIError{Status: 403, Op: "upload", Message: "rate limited"}
		}
		return nil
	})

	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"a.txt": "payload"})

	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionUpload, Path: "a.txt"}}}
	result := exec.Execute(context.Background(), plan)

	assert.Equal(t, 3, attempts)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Uploaded)
}

func TestExecutorRateLimitExhausted(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	mem.SetInterceptor(func(op, key string) error {
		if op == "upload" {
			return &provider.APIError{Status: 403, Op: "upload", Message: "rate limited"}
		}
		return nil
	})

	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"a.txt": "payload"})

	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionUpload, Path: "a.txt"}}}
	result := exec.Execute(context.Background(), plan)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "a.txt")
	assert.Equal(t, 0, result.Uploaded)
}

func TestExecutorNonRateLimitErrorNoRetry(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")

	attempts := 0
	mem.SetInterceptor(func(op, key string) error {
		if op == "upload" {
			attempts++
			return &provider.APIError{Status: 500, Op: "upload", Message: "boom"}
		}
		return nil
	})

	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"a.txt": "payload"})

	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionUpload, Path: "a.txt"}}}
	result := exec.Execute(context.Background(), plan)

	assert.Equal(t, 1, attempts)
	require.Len(t, result.Errors, 1)
}

func TestExecutorContinuesAfterFailure(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"ok.txt": "fine"})

	plan := &SyncPlan{Actions: []PlanItem{
		{Action: ActionUpload, Path: "missing.txt"}, // no such local file
		{Action: ActionUpload, Path: "ok.txt"},
	}}
	result := exec.Execute(context.Background(), plan)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Uploaded)
}

func TestExecutorCancellation(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	exec := newTestExecutor(t, mem, projectID, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := &SyncPlan{Actions: []PlanItem{{Action: ActionUpload, Path: "a.txt"}}}
	result := exec.Execute(ctx, plan)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Synced())
}

func TestExecutorProgressCallback(t *testing.T) {
	mem := provider.NewMemoryProvider()
	projectID := mem.AddProject("demo")
	exec := newTestExecutor(t, mem, projectID, nil)
	writeTree(t, exec.Root, map[string]string{"a.txt": "1", "b.txt": "2"})

	var seen []int
	exec.Progress = func(done, total int, item PlanItem) {
		assert.Equal(t, 2, total)
		seen = append(seen, done)
	}

	plan := &SyncPlan{Actions: []PlanItem{
		{Action: ActionUpload, Path: "a.txt"},
		{Action: ActionUpload, Path: "b.txt"},
	}}
	exec.Execute(context.Background(), plan)
	assert.Equal(t, []int{1, 2}, seen)
}
