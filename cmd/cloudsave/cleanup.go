package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/store"
)

func newCleanupCmd(a *app) *cobra.Command {
	var (
		workers   int
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Abort multipart uploads left behind by failed or killed saves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.openJournal()
			if err != nil {
				return err
			}
			if journal == nil {
				return errJournalDisabled
			}
			defer journal.Close()

			// recently touched records may belong to a save still running
			cutoff := time.Now().Add(-olderThan)
			keep := func(r *store.JobRecord) bool {
				return r.UpdatedAt.After(cutoff)
			}

			cleaner := engine.NewCleaner(journal, a.cfg.NewResolver(), workers, a.logger)
			report, err := cleaner.Run(cmd.Context(), keep)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range report.Aborted {
				fmt.Fprintf(out, "aborted  %s\n", id)
			}
			for _, id := range slices.Sorted(maps.Keys(report.Failed)) {
				fmt.Fprintf(out, "failed   %s: %v\n", id, report.Failed[id])
			}
			fmt.Fprintf(out, "%d aborted, %d failed\n", len(report.Aborted), len(report.Failed))
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d uploads could not be aborted", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Number of uploads aborted concurrently")
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Leave saves updated more recently than this alone")
	return cmd
}
