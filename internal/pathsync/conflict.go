package pathsync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// Strategy selects how two-sided divergences get resolved.
type Strategy string

const (
	StrategyLocalWins  Strategy = "local-wins"
	StrategyRemoteWins Strategy = "remote-wins"
	StrategyPrompt     Strategy = "prompt"
	StrategyMerge      Strategy = "external-merge"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocalWins, StrategyRemoteWins, StrategyPrompt, StrategyMerge:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown conflict strategy %q", s)
}

// Resolution records what happened to one conflict.
type Resolution string

const (
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepRemote Resolution = "keep_remote"
	ResolutionMerged     Resolution = "merged"
	ResolutionSkipped    Resolution = "skipped"
)

// ConflictInfo carries both sides of a conflicted path through resolution.
// Created during one pass and discarded once the resolution is applied.
type ConflictInfo struct {
	Path          string
	LocalContent  []byte
	RemoteContent []byte
	MergedContent []byte
	Resolution    Resolution
	Err           error
}

// Choice is a prompt outcome, returned as data rather than raised as
// control flow.
type Choice int

const (
	ChoiceKeepLocal Choice = iota
	ChoiceKeepRemote
	ChoiceMerge
	ChoiceSkip
	// ChoiceCancel skips this and every remaining conflict in the pass.
	ChoiceCancel
)

// Prompter asks the user to decide one conflict. diff is a unified
// local-vs-remote content diff. Implementations may re-render views
// internally but must return a final Choice.
type Prompter interface {
	Choose(info *ConflictInfo, diff string) (Choice, error)
}

var ErrNoPrompter = errors.New("prompt strategy requires an interactive prompter")

// Resolver turns conflict plan items into concrete actions per a strategy.
type Resolver struct {
	Root       string
	LoadRemote func(path string) ([]byte, error)
	Prompter   Prompter
	Editor     string // external merge command; $EDITOR when empty
}

// Resolve classifies every conflict. Returned actions join the plan's action
// list; remaining holds conflicts that produced no action (skipped, failed,
// or merged locally pending a future pass), each with Resolution and Err set.
// A failed strategy degrades to skip, never drops a conflict silently.
func (r *Resolver) Resolve(conflicts []PlanItem, strategy Strategy) ([]PlanItem, []ConflictInfo) {
	var actions []PlanItem
	var remaining []ConflictInfo

	cancelled := false
	for _, item := range conflicts {
		info, err := r.load(item)
		if err != nil {
			info.Resolution = ResolutionSkipped
			info.Err = err
			remaining = append(remaining, *info)
			slog.Warn("conflict load failed, skipping", "path", item.Path, "error", err)
			continue
		}

		choice, err := r.decide(info, strategy, cancelled)
		if err != nil {
			info.Resolution = ResolutionSkipped
			info.Err = err
			remaining = append(remaining, *info)
			slog.Warn("conflict resolution failed, skipping", "path", item.Path, "error", err)
			continue
		}

		switch choice {
		case ChoiceKeepLocal:
			info.Resolution = ResolutionKeepLocal
			actions = append(actions, PlanItem{
				Action:     ActionUpload,
				Path:       item.Path,
				Reason:     "conflict resolved: keeping local",
				LocalHash:  item.LocalHash,
				RemoteHash: item.RemoteHash,
			})
		case ChoiceKeepRemote:
			info.Resolution = ResolutionKeepRemote
			actions = append(actions, PlanItem{
				Action:     ActionDownload,
				Path:       item.Path,
				Reason:     "conflict resolved: keeping remote",
				LocalHash:  item.LocalHash,
				RemoteHash: item.RemoteHash,
			})
		case ChoiceMerge:
			merged, err := r.externalMerge(info)
			if err != nil {
				info.Resolution = ResolutionSkipped
				info.Err = err
				remaining = append(remaining, *info)
				slog.Warn("external merge failed, skipping", "path", item.Path, "error", err)
				continue
			}
			// the merge result lands as a local write, not an upload;
			// the next sync pass propagates it remotely
			info.MergedContent = merged
			if err := r.writeLocal(item.Path, merged); err != nil {
				info.Resolution = ResolutionSkipped
				info.Err = err
				remaining = append(remaining, *info)
				continue
			}
			info.Resolution = ResolutionMerged
			remaining = append(remaining, *info)
		case ChoiceCancel:
			cancelled = true
			fallthrough
		case ChoiceSkip:
			info.Resolution = ResolutionSkipped
			remaining = append(remaining, *info)
		}
	}

	return actions, remaining
}

func (r *Resolver) load(item PlanItem) (*ConflictInfo, error) {
	info := &ConflictInfo{Path: item.Path}

	localContent, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(item.Path)))
	if err != nil {
		return info, fmt.Errorf("read local %s: %w", item.Path, err)
	}
	info.LocalContent = localContent

	if r.LoadRemote == nil {
		return info, fmt.Errorf("no remote content loader for %s", item.Path)
	}
	remoteContent, err := r.LoadRemote(item.Path)
	if err != nil {
		return info, fmt.Errorf("read remote %s: %w", item.Path, err)
	}
	info.RemoteContent = remoteContent

	return info, nil
}

func (r *Resolver) decide(info *ConflictInfo, strategy Strategy, cancelled bool) (Choice, error) {
	switch strategy {
	case StrategyLocalWins:
		return ChoiceKeepLocal, nil
	case StrategyRemoteWins:
		return ChoiceKeepRemote, nil
	case StrategyMerge:
		return ChoiceMerge, nil
	case StrategyPrompt:
		if cancelled {
			return ChoiceSkip, nil
		}
		if r.Prompter == nil {
			return ChoiceSkip, ErrNoPrompter
		}
		return r.Prompter.Choose(info, UnifiedDiff(info))
	}
	return ChoiceSkip, fmt.Errorf("unknown conflict strategy %q", strategy)
}

// externalMerge writes both sides plus a merge target to temp files, hands
// the trio to an editor, and reads the target back.
func (r *Resolver) externalMerge(info *ConflictInfo) ([]byte, error) {
	editor := r.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		return nil, errors.New("no merge editor configured and $EDITOR is unset")
	}

	dir, err := os.MkdirTemp("", "driftsync-merge-*")
	if err != nil {
		return nil, fmt.Errorf("create merge dir: %w", err)
	}
	defer os.RemoveAll(dir)

	base := filepath.Base(info.Path)
	localPath := filepath.Join(dir, base+".local")
	remotePath := filepath.Join(dir, base+".remote")
	mergePath := filepath.Join(dir, base+".merge")

	if err := os.WriteFile(localPath, info.LocalContent, 0o644); err != nil {
		return nil, fmt.Errorf("write merge input: %w", err)
	}
	if err := os.WriteFile(remotePath, info.RemoteContent, 0o644); err != nil {
		return nil, fmt.Errorf("write merge input: %w", err)
	}
	if err := os.WriteFile(mergePath, info.LocalContent, 0o644); err != nil {
		return nil, fmt.Errorf("write merge target: %w", err)
	}

	cmd := exec.Command(editor, localPath, remotePath, mergePath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("merge editor %q: %w", editor, err)
	}

	merged, err := os.ReadFile(mergePath)
	if err != nil {
		return nil, fmt.Errorf("read merge result: %w", err)
	}
	return merged, nil
}

func (r *Resolver) writeLocal(relPath string, content []byte) error {
	abs := filepath.Join(r.Root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return fmt.Errorf("write merged %s: %w", relPath, err)
	}
	return nil
}
