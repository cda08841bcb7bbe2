package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/pathsync"
	"github.com/driftsync/driftsync/internal/workspace"
)

func init() {
	rootCmd.AddCommand(newWorkspaceCmd())
}

func newWorkspaceCmd() *cobra.Command {
	workspaceCmd := &cobra.Command{
		Use:   "workspace",
		Short: "Bulk operations across many project roots",
	}
	workspaceCmd.AddCommand(newWorkspaceDiscoverCmd(), newWorkspaceProvisionCmd(), newWorkspaceSyncCmd())
	return workspaceCmd
}

func newWorkspaceProvisionCmd() *cobra.Command {
	var (
		orgID string
		path  string
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a local project root for every remote project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := newProvider()
			if err != nil {
				return err
			}

			roots, err := workspace.EnsureRoots(cmd.Context(), p, orgID, path)
			if err != nil {
				return err
			}
			for _, root := range roots {
				fmt.Printf("  %s  %s\n", cyan(root.Name), root.Path)
			}
			fmt.Printf("%s %d project roots ready\n", green("✓"), len(roots))
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Remote organization id")
	cmd.Flags().StringVarP(&path, "path", "p", ".", "Workspace directory to provision into")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newWorkspaceDiscoverCmd() *cobra.Command {
	var (
		paths    []string
		maxDepth int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List project roots under the given search paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			roots := workspace.Discover(paths, maxDepth)
			if len(roots) == 0 {
				fmt.Println("no project roots found")
				return nil
			}
			for _, root := range roots {
				fmt.Printf("  %s  %s\n", cyan(root.Name), root.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&paths, "path", "p", []string{"."}, "Search paths")
	cmd.Flags().IntVar(&maxDepth, "max-depth", workspace.DefaultMaxDepth, "Maximum search depth")
	return cmd
}

func newWorkspaceSyncCmd() *cobra.Command {
	var (
		paths           []string
		maxDepth        int
		workers         int
		timeout         time.Duration
		include         string
		exclude         string
		continueOnError bool
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"sync-all"},
		Short:   "Sync every discovered project root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := newProvider()
			if err != nil {
				return err
			}

			roots := workspace.Discover(paths, maxDepth)
			if len(roots) == 0 {
				fmt.Println("no project roots found")
				return nil
			}

			orch := workspace.NewOrchestrator(func(ctx context.Context, root workspace.ProjectRoot) (string, int, error) {
				cfg, err := config.Load(root.Path)
				if err != nil {
					return "", 0, err
				}
				if err := cfg.Validate(); err != nil {
					return "", 0, err
				}

				direction := pathsync.DirectionPush
				if cfg.TwoWaySync {
					direction = pathsync.DirectionBoth
				}
				strategy, err := pathsync.ParseStrategy(cfg.ConflictStrategy)
				if err != nil || strategy == pathsync.StrategyPrompt {
					// batch mode cannot prompt
					strategy = pathsync.StrategyLocalWins
				}

				engine := pathsync.NewEngine(p, cfg.ActiveOrganizationID, cfg.ActiveProjectID)
				outcome, err := engine.Sync(ctx, root.Path, pathsync.SyncOptions{
					Direction:   direction,
					Strategy:    strategy,
					DryRun:      dryRun,
					PruneRemote: cfg.PruneRemoteFiles,
					PruneLocal:  cfg.PruneLocalFiles,
					UploadDelay: cfg.UploadDelayDuration(),
				})
				if err != nil {
					return "", 0, err
				}
				if dryRun {
					return fmt.Sprintf("%d operations planned", outcome.Plan.TotalOperations()), 0, nil
				}
				res := outcome.Result
				msg := fmt.Sprintf("↑%d ↓%d ✕%d", res.Uploaded, res.Downloaded, res.Deleted)
				return msg, len(res.Errors), nil
			})

			results, err := orch.SyncAll(cmd.Context(), roots, workspace.SyncAllOptions{
				Workers:        workers,
				ProjectTimeout: timeout,
				AbortOnError:   !continueOnError,
				Include:        include,
				Exclude:        exclude,
			})

			printResults(results)
			if errors.Is(err, workspace.ErrBatchAborted) {
				return err
			}
			for _, res := range results {
				if res.Status != workspace.StatusSuccess {
					return fmt.Errorf("%d of %d projects did not sync cleanly", countNotSuccess(results), len(results))
				}
			}
			return err
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringSliceVarP(&paths, "path", "p", []string{"."}, "Search paths")
	cmd.Flags().IntVar(&maxDepth, "max-depth", workspace.DefaultMaxDepth, "Maximum search depth")
	cmd.Flags().IntVarP(&workers, "workers", "w", workspace.DefaultWorkers, "Parallel project pipelines (1 = sequential)")
	cmd.Flags().DurationVar(&timeout, "timeout", workspace.DefaultProjectTimeout, "Per-project time budget")
	cmd.Flags().StringVar(&include, "include", "", "Only sync projects whose folder matches this glob")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Skip projects whose folder matches this glob")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "Keep syncing remaining projects after a failure")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Plan only, execute nothing")

	return cmd
}

func printResults(results []workspace.ProjectResult) {
	for _, res := range results {
		marker := green("✓")
		switch res.Status {
		case workspace.StatusFailed, workspace.StatusError:
			marker = red("✗")
		case workspace.StatusTimeout:
			marker = red("⏱")
		}
		fmt.Printf("  %s %-24s %-8s %-10s %s\n", marker, res.Project, res.Status, res.Duration.Round(time.Millisecond), res.Message)
	}
}

func countNotSuccess(results []workspace.ProjectResult) int {
	n := 0
	for _, res := range results {
		if res.Status != workspace.StatusSuccess {
			n++
		}
	}
	return n
}
