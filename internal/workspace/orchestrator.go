package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds concurrent per-project pipelines, and with them
	// total concurrent remote API load.
	DefaultWorkers = 4

	// DefaultProjectTimeout is the per-project hard budget.
	DefaultProjectTimeout = 5 * time.Minute
)

// ErrBatchAborted is returned by SyncAll when AbortOnError is set and a
// project failed; completed results are still returned alongside it.
var ErrBatchAborted = errors.New("workspace sync aborted after project failure")

// ProjectStatus classifies one project's outcome. failed means per-file
// errors inside an otherwise completed pipeline; error means the pipeline
// itself did not complete; timeout is reported distinctly, never conflated
// with error.
type ProjectStatus string

const (
	StatusSuccess ProjectStatus = "success"
	StatusFailed  ProjectStatus = "failed"
	StatusError   ProjectStatus = "error"
	StatusTimeout ProjectStatus = "timeout"
)

// ProjectResult is one project's outcome in a workspace batch.
type ProjectResult struct {
	Project  string        `json:"project"`
	Status   ProjectStatus `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SyncAllOptions tunes a workspace batch. The zero value continues past
// failing projects; aborting the batch is the opt-in.
type SyncAllOptions struct {
	Workers        int           // bounded pool size; 1 means fully sequential
	ProjectTimeout time.Duration // hard per-project budget
	AbortOnError   bool          // cancel the batch on the first non-success
	Include        string        // folder-name glob applied before dispatch
	Exclude        string
}

func (o *SyncAllOptions) withDefaults() SyncAllOptions {
	opts := *o
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ProjectTimeout <= 0 {
		opts.ProjectTimeout = DefaultProjectTimeout
	}
	return opts
}

// SyncProject runs one project's full pipeline in-process. The returned
// message is a human summary; err means the pipeline itself broke. fileErrors
// reports per-file failures inside a completed pipeline.
type SyncProject func(ctx context.Context, root ProjectRoot) (message string, fileErrors int, err error)

// Orchestrator fans the sync engine out across many project roots. Each
// project pipeline is strictly sequential internally; the orchestrator is
// the only source of parallelism.
type Orchestrator struct {
	Sync SyncProject
}

func NewOrchestrator(sync SyncProject) *Orchestrator {
	return &Orchestrator{Sync: sync}
}

// SyncAll dispatches one pipeline per root to a bounded worker pool and
// collects results as tasks complete. A project exceeding its timeout is
// abandoned (its context cancelled) and reported as timeout without blocking
// the rest. A failing project is reported in its result and the batch moves
// on; with AbortOnError the first non-success cancels the remaining batch and
// SyncAll returns ErrBatchAborted.
func (o *Orchestrator) SyncAll(ctx context.Context, roots []ProjectRoot, options SyncAllOptions) ([]ProjectResult, error) {
	opts := options.withDefaults()
	roots = Filter(roots, opts.Include, opts.Exclude)
	if len(roots) == 0 {
		return nil, nil
	}

	slog.Info("workspace sync", "projects", len(roots), "workers", opts.Workers, "timeout", opts.ProjectTimeout)

	var (
		mu      sync.Mutex
		results []ProjectResult
		aborted bool
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Workers)

	for _, root := range roots {
		root := root
		group.Go(func() error {
			res := o.runOne(gctx, root, opts.ProjectTimeout)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			if res.Status != StatusSuccess && opts.AbortOnError {
				mu.Lock()
				aborted = true
				mu.Unlock()
				// returning an error cancels gctx and with it the rest of
				// the batch
				return fmt.Errorf("project %s: %s", res.Project, res.Status)
			}
			return nil
		})
	}

	err := group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Project < results[j].Project })

	if aborted {
		return results, ErrBatchAborted
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return results, err
	}
	return results, nil
}

type projectOutcome struct {
	message    string
	fileErrors int
	err        error
}

func (o *Orchestrator) runOne(ctx context.Context, root ProjectRoot, timeout time.Duration) ProjectResult {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan projectOutcome, 1)
	go func() {
		msg, fileErrors, err := o.Sync(tctx, root)
		done <- projectOutcome{message: msg, fileErrors: fileErrors, err: err}
	}()

	var out projectOutcome
	select {
	case out = <-done:
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			// the abandoned task sees its context cancelled and unwinds on
			// its own; we do not wait for it
			slog.Warn("project timed out", "project", root.Name, "timeout", timeout)
			return ProjectResult{
				Project:  root.Name,
				Status:   StatusTimeout,
				Message:  fmt.Sprintf("exceeded %s budget", timeout),
				Duration: time.Since(start),
			}
		}
		// batch-level cancellation
		out = projectOutcome{err: tctx.Err()}
	}

	result := ProjectResult{
		Project:  root.Name,
		Message:  out.message,
		Duration: time.Since(start),
	}
	switch {
	case out.err != nil && errors.Is(out.err, context.DeadlineExceeded):
		result.Status = StatusTimeout
		result.Message = fmt.Sprintf("exceeded %s budget", timeout)
	case out.err != nil:
		result.Status = StatusError
		result.Message = out.err.Error()
	case out.fileErrors > 0:
		result.Status = StatusFailed
		if result.Message == "" {
			result.Message = fmt.Sprintf("%d file operations failed", out.fileErrors)
		}
	default:
		result.Status = StatusSuccess
	}
	return result
}
