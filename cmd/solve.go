package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetassign/app"
	"github.com/kilianp07/fleetassign/config"
	"github.com/kilianp07/fleetassign/core/model"
	"github.com/kilianp07/fleetassign/pkg/export"
)

var (
	solveProblem string
	solveMode    string
	solveOut     string
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the multi-start constructive search",
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveProblem, "problem", "p", "", "problem document (yaml or json)")
	solveCmd.Flags().StringVar(&solveMode, "mode", "", "capacity or volume, overrides solver.mode")
	solveCmd.Flags().StringVarP(&solveOut, "out", "o", "", "write the assignment to this csv or json file")
	_ = solveCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, _ []string) error {
	doc, err := model.LoadDocument(solveProblem)
	if err != nil {
		return fmt.Errorf("load problem: %w", err)
	}
	p, err := doc.Problem()
	if err != nil {
		return err
	}
	mutate := func(cfg *config.Config) error {
		if solveMode != "" {
			cfg.Solver.Mode = solveMode
		}
		return nil
	}
	return withService(mutate, func(ctx context.Context, svc *app.Service) error {
		res, err := svc.Solve(ctx, p, solveProblem)
		if res == nil {
			return err
		}
		printSolve(cmd.OutOrStdout(), res)
		if solveOut != "" {
			if werr := writeRows(solveOut, export.Rows(p, res.Search.Assignment)); werr != nil {
				return werr
			}
		}
		return err
	})
}

func printSolve(w io.Writer, res *app.SolveResult) {
	_, _ = fmt.Fprintf(w, "run %s: value %.4f (iteration %d, %d improvements) in %s\n",
		res.RunID, res.Search.Value, res.Search.Iteration, res.Search.Improvements, res.Duration)
	for _, l := range res.Search.Assignment.FleetReport() {
		_, _ = fmt.Fprintf(w, "fleet %d: %d postcodes, assigned %.2f (min %.2f, max %.2f)\n",
			l.FleetID, l.Customers, l.Assigned, l.MinVolume, l.MaxVolume)
	}
	if !res.Feasible() {
		_, _ = fmt.Fprintf(w, "%d postcodes not fully served\n", len(res.Unserved))
	}
}

func writeRows(path string, rows []export.Row) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return export.WriteJSON(f, rows)
	}
	return export.WriteCSV(f, rows)
}
