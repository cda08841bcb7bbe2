package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/pathsync"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var (
		root  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the sync history for a project root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			store := pathsync.NewMetadataStore()
			records, err := store.History(root, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no sync history")
				return nil
			}

			lastSync, lastDir, err := store.LastSync(root)
			if err == nil && !lastSync.IsZero() {
				fmt.Printf("last sync: %s (%s, %s)\n\n", humanize.Time(lastSync), lastDir, lastSync.Format(time.RFC3339))
			}

			for _, rec := range records {
				marker := green("✓")
				if rec.Status != pathsync.StatusSuccess {
					marker = red("✗")
				}
				fmt.Printf("  %s %s  %-5s %3d files  %s\n",
					marker,
					rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
					rec.Direction,
					rec.FilesSynced,
					rec.Status,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", ".", "Project root")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum records to show")
	return cmd
}
