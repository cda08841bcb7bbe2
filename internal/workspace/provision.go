package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/provider"
	"github.com/driftsync/driftsync/internal/utils"
)

// EnsureRoots maps every remote project of the organization to a local
// folder under workspaceRoot, creating folders and config documents for
// projects seen for the first time. Existing mappings win over remote
// renames, so a renamed remote project keeps its local folder.
func EnsureRoots(ctx context.Context, p provider.Provider, orgID, workspaceRoot string) ([]ProjectRoot, error) {
	workspaceRoot, err := utils.ResolvePath(workspaceRoot)
	if err != nil {
		return nil, err
	}

	projects, err := p.ListProjects(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list remote projects: %w", err)
	}

	mappings := NewMappingStore(workspaceRoot)
	roots := make([]ProjectRoot, 0, len(projects))

	for _, proj := range projects {
		folder, err := mappings.FolderFor(proj.ID, proj.Name)
		if err != nil {
			return nil, err
		}

		rootPath := filepath.Join(workspaceRoot, folder)
		if !config.Exists(rootPath) {
			cfg := &config.Config{
				ActiveOrganizationID: orgID,
				ActiveProjectID:      proj.ID,
				ActiveProjectName:    proj.Name,
				LocalPath:            rootPath,
				UploadDelay:          config.DefaultUploadDelaySeconds,
				ConflictStrategy:     config.DefaultStrategy,
			}
			if err := cfg.Save(rootPath); err != nil {
				return nil, fmt.Errorf("provision %s: %w", folder, err)
			}
			slog.Info("provisioned project root", "project", proj.Name, "folder", folder)
		}

		roots = append(roots, ProjectRoot{Path: rootPath, Name: folder})
	}

	return roots, nil
}
