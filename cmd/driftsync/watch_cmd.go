package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/pathsync"
	"github.com/driftsync/driftsync/internal/watch"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	var (
		root   string
		daemon bool
	)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a project root and sync on changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// re-exec'd daemon children run the loop directly
			if daemon && os.Getenv(watch.DaemonEnv) == "" {
				pid, err := watch.StartDaemon(root, "--daemon")
				if err != nil {
					return err
				}
				fmt.Printf("%s watch daemon started (pid %d)\n", green("✓"), pid)
				return nil
			}

			if os.Getenv(watch.DaemonEnv) != "" {
				// child owns its pid file from here on
				if err := watch.WritePidFile(root, os.Getpid()); err != nil {
					return err
				}
				defer func() { _ = watch.RemovePidFile(root) }()
			}

			return runWatch(cmd.Context(), root)
		},
	}

	watchCmd.Flags().StringVarP(&root, "root", "r", ".", "Project root to watch")
	watchCmd.Flags().BoolVar(&daemon, "daemon", false, "Detach and run in the background")

	watchCmd.AddCommand(newWatchStopCmd(), newWatchStatusCmd())
	return watchCmd
}

func runWatch(ctx context.Context, root string) error {
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := newProvider()
	if err != nil {
		return err
	}
	engine := pathsync.NewEngine(p, cfg.ActiveOrganizationID, cfg.ActiveProjectID)

	direction := pathsync.DirectionPush
	if cfg.TwoWaySync {
		direction = pathsync.DirectionBoth
	}
	strategy, err := pathsync.ParseStrategy(cfg.ConflictStrategy)
	if err != nil {
		strategy = pathsync.StrategyLocalWins
	}
	if strategy == pathsync.StrategyPrompt {
		// no terminal to prompt on inside a watch loop
		strategy = pathsync.StrategyLocalWins
	}

	ignore := pathsync.NewIgnoreList(root)
	ignore.Load()

	watcher := watch.NewWatcher(root, ignore, func(ctx context.Context, touched []string) error {
		_, err := engine.Sync(ctx, root, pathsync.SyncOptions{
			Direction:   direction,
			Strategy:    strategy,
			PruneRemote: cfg.PruneRemoteFiles,
			PruneLocal:  cfg.PruneLocalFiles,
			UploadDelay: cfg.UploadDelayDuration(),
		})
		if errors.Is(err, pathsync.ErrRootBusy) {
			// another pipeline has the root; the next quiet period retries
			return nil
		}
		return err
	})

	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newWatchStopCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the watch daemon for a project root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := watch.StopDaemon(root); err != nil {
				return err
			}
			fmt.Println(green("✓"), "watch daemon stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", ".", "Project root")
	return cmd
}

func newWatchStatusCmd() *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a watch daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			running, pid, err := watch.DaemonStatus(root)
			if err != nil {
				return err
			}
			if running {
				fmt.Printf("%s watching (pid %d)\n", green("●"), pid)
			} else {
				fmt.Printf("%s not watching\n", red("●"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&root, "root", "r", ".", "Project root")
	return cmd
}
