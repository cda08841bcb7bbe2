package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/pathsync"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	var (
		root        string
		direction   string
		strategy    string
		dryRun      bool
		pruneRemote bool
		pruneLocal  bool
	)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass for a project root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts, err := buildSyncOptions(cfg, direction, strategy, dryRun, pruneRemote, pruneLocal)
			if err != nil {
				return err
			}

			p, err := newProvider()
			if err != nil {
				return err
			}

			engine := pathsync.NewEngine(p, cfg.ActiveOrganizationID, cfg.ActiveProjectID)
			outcome, err := engine.Sync(cmd.Context(), root, opts)
			if err != nil {
				return err
			}

			if dryRun {
				printPlan(outcome.Plan)
				return nil
			}
			printOutcome(outcome)
			if len(outcome.Result.Errors) > 0 {
				return fmt.Errorf("%d file operations failed", len(outcome.Result.Errors))
			}
			return nil
		},
	}

	syncCmd.Flags().SortFlags = false
	syncCmd.Flags().StringVarP(&root, "root", "r", ".", "Project root to sync")
	syncCmd.Flags().StringVarP(&direction, "direction", "d", "", "Sync direction: push, pull or both (default from config)")
	syncCmd.Flags().StringVarP(&strategy, "strategy", "s", "", "Conflict strategy: local-wins, remote-wins, prompt or external-merge")
	syncCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the plan without executing it")
	syncCmd.Flags().BoolVar(&pruneRemote, "prune-remote", false, "Delete remote files with no local counterpart")
	syncCmd.Flags().BoolVar(&pruneLocal, "prune-local", false, "Delete local files with no remote counterpart (two-way only)")

	return syncCmd
}

func buildSyncOptions(cfg *config.Config, direction, strategy string, dryRun, pruneRemote, pruneLocal bool) (pathsync.SyncOptions, error) {
	opts := pathsync.SyncOptions{
		DryRun:      dryRun,
		UploadDelay: cfg.UploadDelayDuration(),
		Prompter:    &pathsync.ConsolePrompter{In: os.Stdin, Out: os.Stdout},
	}

	if direction == "" {
		if cfg.TwoWaySync {
			direction = string(pathsync.DirectionBoth)
		} else {
			direction = string(pathsync.DirectionPush)
		}
	}
	opts.Direction = pathsync.Direction(direction)
	if !opts.Direction.Valid() {
		return opts, fmt.Errorf("invalid direction %q", direction)
	}

	if strategy == "" {
		strategy = cfg.ConflictStrategy
	}
	if strategy == "" {
		strategy = config.DefaultStrategy
	}
	parsed, err := pathsync.ParseStrategy(strategy)
	if err != nil {
		return opts, err
	}
	opts.Strategy = parsed

	opts.PruneRemote = pruneRemote || cfg.PruneRemoteFiles
	opts.PruneLocal = pruneLocal || cfg.PruneLocalFiles

	return opts, nil
}

func printPlan(plan *pathsync.SyncPlan) {
	if !plan.HasChanges() {
		fmt.Println(green("✓"), "everything in sync, nothing to do")
		return
	}

	fmt.Printf("plan (%s): %d operations\n", plan.Direction, plan.TotalOperations())
	for _, item := range plan.Actions {
		fmt.Printf("  %-14s %s  (%s)\n", cyan(string(item.Action)), item.Path, item.Reason)
	}
	for _, item := range plan.Conflicts {
		fmt.Printf("  %-14s %s  (%s)\n", red("conflict"), item.Path, item.Reason)
	}
}

func printOutcome(outcome *pathsync.SyncOutcome) {
	res := outcome.Result
	fmt.Printf("%s uploaded %s, downloaded %s, deleted %s\n",
		green("synced:"),
		humanize.Comma(int64(res.Uploaded)),
		humanize.Comma(int64(res.Downloaded)),
		humanize.Comma(int64(res.Deleted)),
	)
	for _, info := range outcome.Unresolved {
		switch info.Resolution {
		case pathsync.ResolutionMerged:
			fmt.Printf("  %s %s (merged locally, next sync uploads it)\n", cyan("merged:"), info.Path)
		default:
			if info.Err != nil {
				fmt.Printf("  %s %s (%v)\n", red("skipped:"), info.Path, info.Err)
			} else {
				fmt.Printf("  %s %s\n", red("skipped:"), info.Path)
			}
		}
	}
	for _, errMsg := range res.Errors {
		fmt.Printf("  %s %s\n", red("failed:"), errMsg)
	}
	if res.Cancelled {
		fmt.Println(red("cancelled"), "(partial results above)")
	}
}
