package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetassign/app"
	"github.com/kilianp07/fleetassign/core/runlog"
)

var (
	runsStrategy string
	runsSince    time.Duration
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Run log commands",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded runs",
	RunE:  runRunsLs,
}

func init() {
	runsLsCmd.Flags().StringVar(&runsStrategy, "strategy", "", "multistart or genetic")
	runsLsCmd.Flags().DurationVar(&runsSince, "since", 0, "only runs newer than this duration")
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs, 0 for all")
	runsCmd.AddCommand(runsLsCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsLs(cmd *cobra.Command, _ []string) error {
	q := runlog.Query{Strategy: runsStrategy, Limit: runsLimit}
	if runsSince > 0 {
		q.Start = time.Now().Add(-runsSince)
	}
	return withService(nil, func(ctx context.Context, svc *app.Service) error {
		recs, err := svc.Store().Query(ctx, q)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "RUN\tSTRATEGY\tMODE\tOBJECTIVE\tFEASIBLE\tDURATION\tTIME")
		for _, r := range recs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%t\t%s\t%s\n",
				r.RunID, r.Strategy, r.Mode, r.Objective, r.Feasible,
				r.Duration.Round(time.Millisecond), r.Timestamp.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}
