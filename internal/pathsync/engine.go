package pathsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/driftsync/driftsync/internal/provider"
	"github.com/driftsync/driftsync/internal/utils"
)

var (
	// ErrRootBusy means another pipeline (watcher or orchestrator) holds the
	// root's sync lock. Exactly one executor may run per root.
	ErrRootBusy = errors.New("another sync is running against this root")

	// ErrNoProject is the fatal configuration error: the engine cannot work
	// without a remote identity.
	ErrNoProject = errors.New("no remote organization/project configured")
)

const lockFile = "sync.lock"

// SyncOptions parameterizes one pass. Zero values fall back to defaults
// (direction both requires explicit opt-in via config or flags).
type SyncOptions struct {
	Direction   Direction
	Strategy    Strategy
	DryRun      bool
	PruneRemote bool
	PruneLocal  bool
	UploadDelay time.Duration
	Prompter    Prompter
	Editor      string
	Progress    ProgressFunc
}

// SyncOutcome is what one pass produced. Plan is always set; Result is nil
// for dry runs. Unresolved lists conflicts that produced no plan action.
type SyncOutcome struct {
	Root       string
	Plan       *SyncPlan
	Result     *Result
	Unresolved []ConflictInfo
}

// Status maps the outcome onto the history log's status values.
func (o *SyncOutcome) Status() SyncStatus {
	if o.Result == nil {
		return StatusSuccess
	}
	switch {
	case len(o.Result.Errors) == 0 && !o.Result.Cancelled:
		return StatusSuccess
	case o.Result.Synced() > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Engine runs the full per-root pipeline: scan, plan, resolve, execute,
// record. Scanners are held per root so their hash caches survive between
// passes; everything else is parameterized by an explicit root.
type Engine struct {
	Provider  provider.Provider
	OrgID     string
	ProjectID string
	Metadata  *MetadataStore

	mu       sync.Mutex
	scanners map[string]*rootScanner
}

// rootScanner pairs a root's ignore list with the scanner reading through it.
// The ignore list is reloaded every pass; the scanner's cache persists.
type rootScanner struct {
	ignore  *IgnoreList
	scanner *Scanner
}

func NewEngine(p provider.Provider, orgID, projectID string) *Engine {
	return &Engine{
		Provider:  p,
		OrgID:     orgID,
		ProjectID: projectID,
		Metadata:  NewMetadataStore(),
		scanners:  make(map[string]*rootScanner),
	}
}

func (e *Engine) scannerFor(root string) *rootScanner {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.scanners == nil {
		e.scanners = make(map[string]*rootScanner)
	}
	rs, ok := e.scanners[root]
	if !ok {
		ignore := NewIgnoreList(root)
		rs = &rootScanner{ignore: ignore, scanner: NewScanner(root, ignore)}
		e.scanners[root] = rs
	}
	return rs
}

// Sync performs one pass over root. With opts.DryRun the computed plan is
// returned and nothing local or remote is mutated — no lock is needed since
// a dry run only reads. A real pass takes the root's flock so the watcher
// and the workspace orchestrator can never execute against the same root
// concurrently.
func (e *Engine) Sync(ctx context.Context, root string, opts SyncOptions) (*SyncOutcome, error) {
	if e.OrgID == "" || e.ProjectID == "" {
		return nil, ErrNoProject
	}
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if !opts.Direction.Valid() {
		return nil, fmt.Errorf("invalid sync direction %q", opts.Direction)
	}

	if !opts.DryRun {
		unlock, err := e.lockRoot(root)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	tStart := time.Now()

	rs := e.scannerFor(root)
	rs.ignore.Load()
	localState, err := rs.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("scan local state: %w", err)
	}

	remoteFiles, err := e.Provider.ListFiles(ctx, e.OrgID, e.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list remote files: %w", err)
	}

	plan := BuildPlan(PlanInput{
		Direction:   opts.Direction,
		Local:       localState,
		Remote:      remoteFiles,
		PruneRemote: opts.PruneRemote,
		PruneLocal:  opts.PruneLocal,
	})

	outcome := &SyncOutcome{Root: root, Plan: plan}
	if opts.DryRun {
		slog.Info("dry run", "root", root, "operations", plan.TotalOperations(), "conflicts", len(plan.Conflicts))
		return outcome, nil
	}

	remoteIndex := make(map[string]provider.RemoteFile, len(remoteFiles))
	for _, rf := range remoteFiles {
		remoteIndex[NormPath(rf.Name)] = rf
	}

	execPlan := plan
	if len(plan.Conflicts) > 0 {
		resolver := &Resolver{
			Root:     root,
			Prompter: opts.Prompter,
			Editor:   opts.Editor,
			LoadRemote: func(path string) ([]byte, error) {
				if rf, ok := remoteIndex[path]; ok && rf.Content != nil {
					return rf.Content, nil
				}
				return e.Provider.GetFileContent(ctx, e.OrgID, e.ProjectID, path)
			},
		}
		resolved, unresolved := resolver.Resolve(plan.Conflicts, opts.Strategy)
		outcome.Unresolved = unresolved

		// resolved conflict actions are writes; keep them ahead of the
		// plan's deletes so no file vanishes before its conflict settles
		execPlan = mergeResolved(plan, resolved)
	}

	executor := &Executor{
		Provider:    e.Provider,
		OrgID:       e.OrgID,
		ProjectID:   e.ProjectID,
		Root:        root,
		RemoteIndex: remoteIndex,
		UploadDelay: opts.UploadDelay,
		Progress:    opts.Progress,
	}
	outcome.Result = executor.Execute(ctx, execPlan)

	if err := e.Metadata.RecordSync(root, opts.Direction, outcome.Result.Synced(), outcome.Status()); err != nil {
		slog.Warn("failed to record sync metadata", "root", root, "error", err)
	}

	slog.Info("sync pass done",
		"root", filepath.Base(root),
		"direction", opts.Direction,
		"uploaded", outcome.Result.Uploaded,
		"downloaded", outcome.Result.Downloaded,
		"deleted", outcome.Result.Deleted,
		"errors", len(outcome.Result.Errors),
		"unresolved", len(outcome.Unresolved),
		"took", time.Since(tStart),
	)

	return outcome, nil
}

// lockRoot takes the per-root single-writer lock.
func (e *Engine) lockRoot(root string) (func(), error) {
	lockPath := filepath.Join(root, MetaDir, lockFile)
	if err := utils.EnsureParent(lockPath); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock root: %w", err)
	}
	if !locked {
		return nil, ErrRootBusy
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("failed to release root lock", "path", lockPath, "error", err)
		}
	}, nil
}

// mergeResolved splices resolved-conflict write actions in front of the
// plan's delete actions.
func mergeResolved(plan *SyncPlan, resolved []PlanItem) *SyncPlan {
	merged := &SyncPlan{Direction: plan.Direction}
	var deletes []PlanItem
	for _, item := range plan.Actions {
		if item.Action == ActionDeleteLocal || item.Action == ActionDeleteRemote {
			deletes = append(deletes, item)
		} else {
			merged.Actions = append(merged.Actions, item)
		}
	}
	merged.Actions = append(merged.Actions, resolved...)
	merged.Actions = append(merged.Actions, deletes...)
	return merged
}
