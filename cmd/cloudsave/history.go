package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/franksops/cloudsave/store"
)

var errJournalDisabled = errors.New("the journal is disabled (state.enabled: false)")

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		state  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent saves from the journal",
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

			records, err := journal.ListJobs(func(r *store.JobRecord) bool {
				return state == "" || string(r.State) == state
			})
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many saves (0 for all)")
	cmd.Flags().StringVar(&state, "state", "", "Only show saves in this state (e.g. Failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func printHistory(w io.Writer, records []*store.JobRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No saves found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tMODE\tBYTES\tDESTINATION\tID\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.State, r.Mode,
			r.BytesTransferred, r.Destination, r.ID, r.Error)
	}
	return tw.Flush()
}
