package pathsync

// Direction selects which side(s) of a sync pass are authoritative.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// IncludesPush reports whether local changes propagate to the remote.
func (d Direction) IncludesPush() bool {
	return d == DirectionPush || d == DirectionBoth
}

// IncludesPull reports whether remote changes propagate to the local tree.
func (d Direction) IncludesPull() bool {
	return d == DirectionPull || d == DirectionBoth
}

func (d Direction) Valid() bool {
	switch d {
	case DirectionPush, DirectionPull, DirectionBoth:
		return true
	}
	return false
}

// Action is the closed set of file-level operations a plan can contain.
type Action string

const (
	ActionUpload       Action = "upload"
	ActionDownload     Action = "download"
	ActionDeleteLocal  Action = "delete_local"
	ActionDeleteRemote Action = "delete_remote"
	ActionConflict     Action = "conflict"
	ActionNoop         Action = "noop"
)

// LocalFile is one file in the local tree. Path is root-relative,
// slash-separated and NFC-normalized. Recomputed every pass, never persisted.
type LocalFile struct {
	Path string
	Hash string
}

// PlanItem is a single reconciliation decision. Immutable once built;
// conflict items are converted into upload/download items by the resolver.
type PlanItem struct {
	Action     Action `json:"action"`
	Path       string `json:"path"`
	Reason     string `json:"reason"`
	LocalHash  string `json:"local_hash,omitempty"`
	RemoteHash string `json:"remote_hash,omitempty"`
}

// SyncPlan is the outcome of one plan pass: non-conflicting actions plus the
// conflicts still needing a resolution strategy. Built fresh per pass.
type SyncPlan struct {
	Direction Direction  `json:"direction"`
	Actions   []PlanItem `json:"actions"`
	Conflicts []PlanItem `json:"conflicts"`
}

// TotalOperations counts everything the plan wants to do, conflicts included.
func (p *SyncPlan) TotalOperations() int {
	return len(p.Actions) + len(p.Conflicts)
}

func (p *SyncPlan) HasChanges() bool {
	return p.TotalOperations() > 0
}

// Counts returns per-action totals, for plan summaries.
func (p *SyncPlan) Counts() map[Action]int {
	counts := make(map[Action]int)
	for _, item := range p.Actions {
		counts[item.Action]++
	}
	if len(p.Conflicts) > 0 {
		counts[ActionConflict] = len(p.Conflicts)
	}
	return counts
}
