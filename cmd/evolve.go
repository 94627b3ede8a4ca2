package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/kilianp07/fleetassign/app"
	"github.com/kilianp07/fleetassign/config"
	"github.com/kilianp07/fleetassign/core/model"
	"github.com/kilianp07/fleetassign/pkg/export"
)

var (
	evolveProblem  string
	evolveSimulate bool
	evolveChart    string
	evolveOut      string
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run the genetic optimizer",
	RunE:  runEvolve,
}

func init() {
	evolveCmd.Flags().StringVarP(&evolveProblem, "problem", "p", "", "problem document (yaml or json)")
	evolveCmd.Flags().BoolVar(&evolveSimulate, "simulate", false, "score individuals with simulated productivities")
	evolveCmd.Flags().StringVar(&evolveChart, "chart", "", "write an html convergence chart to this file")
	evolveCmd.Flags().StringVarP(&evolveOut, "out", "o", "", "write the best assignment to this csv or json file")
	_ = evolveCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, _ []string) error {
	doc, err := model.LoadDocument(evolveProblem)
	if err != nil {
		return fmt.Errorf("load problem: %w", err)
	}
	cm, err := doc.CostModel()
	if err != nil {
		return err
	}
	mutate := func(cfg *config.Config) error {
		if cmd.Flags().Changed("simulate") {
			cfg.Genetic.Simulate = evolveSimulate
		}
		return nil
	}
	return withService(mutate, func(ctx context.Context, svc *app.Service) error {
		res, err := svc.Evolve(ctx, cm, evolveProblem)
		if res == nil {
			return err
		}
		w := cmd.OutOrStdout()
		if res.Feasible() {
			_, _ = fmt.Fprintf(w, "run %s: cost %.4f (deterministic %.4f, stochastic %.4f) in %s\n",
				res.RunID, res.GA.Cost, res.GA.DeterministicCost, res.GA.StochasticCost, res.Duration)
		} else {
			_, _ = fmt.Fprintf(w, "run %s: no feasible assignment after %d generations\n", res.RunID, len(res.GA.History))
		}
		if evolveChart != "" {
			if werr := writeChart(evolveChart, res); werr != nil {
				return werr
			}
		}
		if evolveOut != "" && !math.IsInf(res.GA.Cost, 1) {
			if werr := writeRows(evolveOut, export.GenomeRows(cm, res.GA.Best)); werr != nil {
				return werr
			}
		}
		return err
	})
}

func writeChart(path string, res *app.EvolveResult) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return export.WriteConvergenceChart(f, res.GA.History)
}
