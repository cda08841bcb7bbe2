// Package workspace manages a collection of independently-paired project
// roots: discovering them on disk, keeping remote-project-to-folder mappings
// stable, and running the sync engine across all of them with bounded
// parallelism.
package workspace

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/driftsync/driftsync/internal/pathsync"
	"github.com/driftsync/driftsync/internal/utils"
)

const (
	// DefaultMaxDepth bounds how deep discovery descends below each search
	// path.
	DefaultMaxDepth = 3

	workspaceFile = "workspace.json"
)

// ProjectRoot is one discovered local project.
type ProjectRoot struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Discover walks each search path up to maxDepth looking for directories
// that carry the marker config dir. A project root is never descended into:
// projects do not nest. An unreadable search path is skipped with a warning,
// the rest are still searched.
func Discover(searchPaths []string, maxDepth int) []ProjectRoot {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var roots []ProjectRoot
	seen := make(map[string]struct{})

	for _, searchPath := range searchPaths {
		base, err := utils.ResolvePath(searchPath)
		if err != nil {
			slog.Warn("skipping search path", "path", searchPath, "error", err)
			continue
		}

		err = filepath.WalkDir(base, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				slog.Warn("skipping unreadable path", "path", path, "error", walkErr)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}

			depth := strings.Count(strings.TrimPrefix(path, base), string(filepath.Separator))
			if depth > maxDepth {
				return fs.SkipDir
			}

			if utils.DirExists(filepath.Join(path, pathsync.MetaDir)) {
				if _, dup := seen[path]; !dup {
					seen[path] = struct{}{}
					roots = append(roots, ProjectRoot{Path: path, Name: filepath.Base(path)})
				}
				return fs.SkipDir
			}
			return nil
		})
		if err != nil {
			slog.Warn("discovery walk failed", "path", base, "error", err)
		}
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Path < roots[j].Path })
	return roots
}

// Filter applies include/exclude glob patterns to a discovered set. Patterns
// match the project folder name; empty patterns match everything.
func Filter(roots []ProjectRoot, include, exclude string) []ProjectRoot {
	var out []ProjectRoot
	for _, root := range roots {
		if include != "" {
			if ok, err := doublestar.Match(include, root.Name); err != nil || !ok {
				continue
			}
		}
		if exclude != "" {
			if ok, err := doublestar.Match(exclude, root.Name); err == nil && ok {
				continue
			}
		}
		out = append(out, root)
	}
	return out
}

type workspaceState struct {
	Root     string            `json:"root"`
	Projects map[string]string `json:"projects"` // remote project id -> folder name
}

// MappingStore persists which local folder each remote project lives in, so
// folder names stay stable across passes even if the remote project is
// renamed, and name collisions get deterministic suffixes.
type MappingStore struct {
	mu    sync.Mutex
	root  string
	state *workspaceState
}

func NewMappingStore(workspaceRoot string) *MappingStore {
	return &MappingStore{root: workspaceRoot}
}

func (m *MappingStore) path() string {
	return filepath.Join(m.root, pathsync.MetaDir, workspaceFile)
}

func (m *MappingStore) loadLocked() error {
	if m.state != nil {
		return nil
	}

	state := &workspaceState{Root: m.root, Projects: make(map[string]string)}
	data, err := os.ReadFile(m.path())
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read workspace state: %w", err)
		}
	} else if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("parse workspace state: %w", err)
	}
	if state.Projects == nil {
		state.Projects = make(map[string]string)
	}

	m.state = state
	return nil
}

func (m *MappingStore) saveLocked() error {
	path := m.path()
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace state: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FolderFor returns the stable folder name for a remote project, assigning
// and persisting one on first sight. Collisions with folders already mapped
// to other projects get _1, _2, ... suffixes.
func (m *MappingStore) FolderFor(projectID, remoteName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}

	if folder, ok := m.state.Projects[projectID]; ok {
		return folder, nil
	}

	taken := make(map[string]struct{}, len(m.state.Projects))
	for _, folder := range m.state.Projects {
		taken[folder] = struct{}{}
	}

	base := sanitizeFolderName(remoteName)
	folder := base
	for i := 1; ; i++ {
		if _, exists := taken[folder]; !exists {
			break
		}
		folder = fmt.Sprintf("%s_%d", base, i)
	}

	m.state.Projects[projectID] = folder
	if err := m.saveLocked(); err != nil {
		return "", err
	}
	return folder, nil
}

// Mappings returns a copy of the projectID -> folder map.
func (m *MappingStore) Mappings() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m.state.Projects))
	for id, folder := range m.state.Projects {
		out[id] = folder
	}
	return out, nil
}

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFolderName(name string) string {
	cleaned := unsafeFolderChars.ReplaceAllString(strings.TrimSpace(name), "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "project"
	}
	return cleaned
}
