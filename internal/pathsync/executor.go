package pathsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/driftsync/driftsync/internal/provider"
)

const (
	// DefaultUploadDelay throttles consecutive remote operations. Fixed
	// interval, not adaptive.
	DefaultUploadDelay = 500 * time.Millisecond

	rateLimitAttempts = 3
	rateLimitBackoff  = time.Second
)

// Result aggregates one plan execution. Counts are partial when cancelled;
// applied actions are never rolled back.
type Result struct {
	Uploaded   int      `json:"uploaded"`
	Downloaded int      `json:"downloaded"`
	Deleted    int      `json:"deleted"`
	Errors     []string `json:"errors,omitempty"`
	Cancelled  bool     `json:"cancelled,omitempty"`
}

// Synced is the number of files the execution actually touched.
func (r *Result) Synced() int {
	return r.Uploaded + r.Downloaded + r.Deleted
}

// ProgressFunc observes each plan item as it completes. done counts items
// attempted so far (including failures).
type ProgressFunc func(done, total int, item PlanItem)

// Executor applies a SyncPlan against one project root, strictly
// sequentially. Parallelism lives one level up, in the workspace
// orchestrator, so remote API concurrency stays bounded per project.
type Executor struct {
	Provider  provider.Provider
	OrgID     string
	ProjectID string
	Root      string

	// RemoteIndex maps normalized path -> remote file from the listing the
	// plan was built against; required for deletes (id) and downloads
	// (content).
	RemoteIndex map[string]provider.RemoteFile

	UploadDelay time.Duration
	Progress    ProgressFunc
}

// Execute runs every action in the plan. A single operation's failure is
// recorded and execution continues; rate-limit responses get a bounded
// retry first. Cancellation is checked before each remote operation and
// stops execution with partial counts.
func (e *Executor) Execute(ctx context.Context, plan *SyncPlan) *Result {
	result := &Result{}
	delay := e.UploadDelay
	if delay == 0 {
		delay = DefaultUploadDelay
	}

	total := len(plan.Actions)
	for i, item := range plan.Actions {
		if ctx.Err() != nil {
			result.Cancelled = true
			slog.Info("execution cancelled", "applied", i, "total", total)
			return result
		}

		if err := e.apply(ctx, item, result); err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", item.Action, item.Path, err))
			slog.Error("sync op failed", "action", item.Action, "path", item.Path, "error", err)
		} else {
			slog.Debug("sync op", "action", item.Action, "path", item.Path, "reason", item.Reason)
		}

		if e.Progress != nil {
			e.Progress(i+1, total, item)
		}

		// throttle between remote operations, but not after the last one
		if i < total-1 {
			if !sleepCtx(ctx, delay) {
				result.Cancelled = true
				return result
			}
		}
	}

	return result
}

func (e *Executor) apply(ctx context.Context, item PlanItem, result *Result) error {
	switch item.Action {
	case ActionUpload:
		if err := e.upload(ctx, item.Path); err != nil {
			return err
		}
		result.Uploaded++
	case ActionDownload:
		if err := e.download(ctx, item.Path); err != nil {
			return err
		}
		result.Downloaded++
	case ActionDeleteRemote:
		if err := e.deleteRemote(ctx, item.Path); err != nil {
			return err
		}
		result.Deleted++
	case ActionDeleteLocal:
		if err := e.deleteLocal(item.Path); err != nil {
			return err
		}
		result.Deleted++
	case ActionNoop:
		// nothing to do
	default:
		return fmt.Errorf("unexpected action %q", item.Action)
	}
	return nil
}

func (e *Executor) upload(ctx context.Context, relPath string) error {
	content, err := os.ReadFile(e.abs(relPath))
	if err != nil {
		return fmt.Errorf("read local: %w", err)
	}
	return e.withRetry(ctx, func() error {
		_, err := e.Provider.UploadFile(ctx, e.OrgID, e.ProjectID, relPath, content)
		return err
	})
}

func (e *Executor) download(ctx context.Context, relPath string) error {
	var content []byte
	if rf, ok := e.RemoteIndex[relPath]; ok && rf.Content != nil {
		content = rf.Content
	} else {
		err := e.withRetry(ctx, func() error {
			var err error
			content, err = e.Provider.GetFileContent(ctx, e.OrgID, e.ProjectID, relPath)
			return err
		})
		if err != nil {
			return err
		}
	}

	abs := e.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("write local: %w", err)
	}
	return nil
}

func (e *Executor) deleteRemote(ctx context.Context, relPath string) error {
	rf, ok := e.RemoteIndex[relPath]
	if !ok {
		return fmt.Errorf("no remote id for %s", relPath)
	}
	return e.withRetry(ctx, func() error {
		return e.Provider.DeleteFile(ctx, e.OrgID, e.ProjectID, rf.ID)
	})
}

func (e *Executor) deleteLocal(relPath string) error {
	err := os.Remove(e.abs(relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// withRetry retries rate-limited calls with a fixed backoff. Anything other
// than a rate-limit error fails immediately.
func (e *Executor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= rateLimitAttempts; attempt++ {
		err = fn()
		if err == nil || !provider.IsRateLimited(err) {
			return err
		}
		if attempt < rateLimitAttempts {
			slog.Warn("rate limited, retrying", "attempt", attempt, "backoff", rateLimitBackoff)
			if !sleepCtx(ctx, rateLimitBackoff) {
				return ctx.Err()
			}
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) abs(relPath string) string {
	return filepath.Join(e.Root, filepath.FromSlash(relPath))
}
