package pathsync

import (
	"sort"

	"github.com/driftsync/driftsync/internal/provider"
)

// PlanInput is everything BuildPlan needs for one pass.
type PlanInput struct {
	Direction   Direction
	Local       map[string]LocalFile    // path -> file, NFC slash paths
	Remote      []provider.RemoteFile   // provider listing
	PruneRemote bool
	PruneLocal  bool
}

// remoteEntry indexes a remote file by its normalized name with a comparable
// content hash (remote hash is computed from content when the provider does
// not supply one).
type remoteEntry struct {
	file provider.RemoteFile
	hash string
}

// BuildPlan compares the local and remote file sets and produces the actions
// and conflicts needed to reconcile them.
//
// There is no common-ancestor version anywhere in this model: under
// direction=both any path whose two sides differ is a conflict, never an
// automatic action. Prune flags flip the treatment of one-sided paths from
// copy to delete. Write actions are ordered before deletes so a failure
// mid-plan never leaves data deleted that was not yet copied.
func BuildPlan(in PlanInput) *SyncPlan {
	plan := &SyncPlan{Direction: in.Direction}

	local := make(map[string]LocalFile, len(in.Local))
	for path, f := range in.Local {
		normed := NormPath(path)
		f.Path = normed
		local[normed] = f
	}

	remote := make(map[string]remoteEntry, len(in.Remote))
	for _, rf := range in.Remote {
		hash := rf.Hash
		if hash == "" {
			hash = HashBytes(rf.Content)
		}
		remote[NormPath(rf.Name)] = remoteEntry{file: rf, hash: hash}
	}

	var writes, deletes []PlanItem

	for path, lf := range local {
		re, onRemote := remote[path]
		switch {
		case !onRemote:
			if in.Direction == DirectionBoth && in.PruneLocal {
				deletes = append(deletes, PlanItem{
					Action:    ActionDeleteLocal,
					Path:      path,
					Reason:    "file deleted remotely",
					LocalHash: lf.Hash,
				})
			} else if in.Direction.IncludesPush() {
				writes = append(writes, PlanItem{
					Action:    ActionUpload,
					Path:      path,
					Reason:    "new local file",
					LocalHash: lf.Hash,
				})
			}
		case lf.Hash != re.hash:
			switch in.Direction {
			case DirectionPush:
				writes = append(writes, PlanItem{
					Action:     ActionUpload,
					Path:       path,
					Reason:     "local file modified",
					LocalHash:  lf.Hash,
					RemoteHash: re.hash,
				})
			case DirectionPull:
				writes = append(writes, PlanItem{
					Action:     ActionDownload,
					Path:       path,
					Reason:     "remote file modified",
					LocalHash:  lf.Hash,
					RemoteHash: re.hash,
				})
			case DirectionBoth:
				plan.Conflicts = append(plan.Conflicts, PlanItem{
					Action:     ActionConflict,
					Path:       path,
					Reason:     "modified in both locations",
					LocalHash:  lf.Hash,
					RemoteHash: re.hash,
				})
			}
		}
	}

	for path, re := range remote {
		if _, onLocal := local[path]; onLocal {
			continue
		}
		if in.PruneRemote && in.Direction.IncludesPush() {
			deletes = append(deletes, PlanItem{
				Action:     ActionDeleteRemote,
				Path:       path,
				Reason:     "file deleted locally",
				RemoteHash: re.hash,
			})
		} else if in.Direction.IncludesPull() {
			writes = append(writes, PlanItem{
				Action:     ActionDownload,
				Path:       path,
				Reason:     "new remote file",
				RemoteHash: re.hash,
			})
		}
	}

	sortByPath(writes)
	sortByPath(deletes)
	sortByPath(plan.Conflicts)
	plan.Actions = append(writes, deletes...)

	return plan
}

func sortByPath(items []PlanItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
}
