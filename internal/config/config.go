// Package config loads and saves the per-root project configuration the sync
// engine consumes read-only: remote identity, sync toggles, and tuning knobs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/driftsync/driftsync/internal/pathsync"
	"github.com/driftsync/driftsync/internal/utils"
)

const (
	// Dir is the marker directory identifying a project root, shared with the
	// engine's metadata store so discovery and config loading can never
	// disagree on it.
	Dir = pathsync.MetaDir

	FileName = "config.json"

	DefaultUploadDelaySeconds = 0.5
	DefaultStrategy           = "prompt"
)

var (
	ErrNotFound       = errors.New("config: project not configured (missing .driftsync/config.json)")
	ErrNoOrganization = errors.New("config: no active organization id")
	ErrNoProject      = errors.New("config: no active project id")
)

// Config is the on-disk per-root document. Identity fields pair the root
// with its remote counterpart; the rest tune the engine.
type Config struct {
	ActiveOrganizationID string  `json:"active_organization_id"`
	ActiveProjectID      string  `json:"active_project_id"`
	ActiveProjectName    string  `json:"active_project_name,omitempty"`
	LocalPath            string  `json:"local_path,omitempty"`
	TwoWaySync           bool    `json:"two_way_sync"`
	PruneRemoteFiles     bool    `json:"prune_remote_files"`
	PruneLocalFiles      bool    `json:"prune_local_files"`
	UploadDelay          float64 `json:"upload_delay"` // seconds
	ConflictStrategy     string  `json:"conflict_resolution_strategy,omitempty"`
}

// Path returns the config file location for a root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Exists reports whether root carries a project config.
func Exists(root string) bool {
	return utils.FileExists(Path(root))
}

// Load reads the root's config document. A missing file is ErrNotFound.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("config read %s: %w", Path(root), err)
	}

	cfg := &Config{
		UploadDelay:      DefaultUploadDelaySeconds,
		ConflictStrategy: DefaultStrategy,
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse %s: %w", Path(root), err)
	}
	return cfg, nil
}

// Save writes the document back, creating the marker directory if needed.
func (c *Config) Save(root string) error {
	path := Path(root)
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the identity fields the engine cannot run without.
func (c *Config) Validate() error {
	if c.ActiveOrganizationID == "" {
		return ErrNoOrganization
	}
	if c.ActiveProjectID == "" {
		return ErrNoProject
	}
	return nil
}

// UploadDelayDuration converts the configured seconds into a Duration,
// falling back to the default when unset or negative.
func (c *Config) UploadDelayDuration() time.Duration {
	secs := c.UploadDelay
	if secs <= 0 {
		secs = DefaultUploadDelaySeconds
	}
	return time.Duration(secs * float64(time.Second))
}
