package scenarios

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetassign/app"
	"github.com/kilianp07/fleetassign/config"
	corelogger "github.com/kilianp07/fleetassign/core/logger"
	"github.com/kilianp07/fleetassign/core/runlog"
	"github.com/kilianp07/fleetassign/infra/metrics"
)

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Solver.Mode = sc.Mode
	cfg.Solver.Seed = sc.Seed
	cfg.Genetic.Seed = sc.Seed
	if sc.Iterations > 0 {
		cfg.Solver.Search.Iterations = sc.Iterations
	}
	if sc.Generations > 0 {
		cfg.Genetic.Generations = sc.Generations
	}
	require.NoError(t, cfg.Validate())

	svc := app.NewWithDeps(cfg, app.Deps{Sink: sink, Store: runlog.NopStore{}, Logger: corelogger.Nop{}})
	defer func() { _ = svc.Close() }()
	ctx := context.Background()
	runs := 0

	if exp := sc.Expected.Solve; exp != nil {
		p, err := sc.Problem.Problem()
		require.NoError(t, err)
		res, err := svc.Solve(ctx, p, sc.Name)
		require.NoError(t, err)
		runs++
		assert.Equal(t, exp.Feasible, res.Feasible(), "solve feasibility")
		assert.Len(t, res.Unserved, exp.Unserved, "unserved postcodes")
		report := res.Search.Assignment.FleetReport()
		for id, qty := range exp.Assigned {
			found := false
			for _, l := range report {
				if l.FleetID == id {
					found = true
					assert.InDelta(t, qty, l.Assigned, 1e-9, "fleet %d", id)
				}
			}
			assert.True(t, found, "fleet %d missing from report", id)
		}
	}

	if exp := sc.Expected.Evolve; exp != nil {
		cm, err := sc.Problem.CostModel()
		require.NoError(t, err)
		res, err := svc.Evolve(ctx, cm, sc.Name)
		require.NoError(t, err)
		runs++
		assert.Equal(t, exp.Feasible, res.Feasible(), "evolve feasibility")
		if exp.Feasible {
			assert.InDelta(t, exp.Cost, res.GA.Cost, 1e-6)
			assert.InDelta(t, exp.Cost, res.GA.DeterministicCost, 1e-6)
		}
	}

	series, err := testutil.GatherAndCount(reg, "fleetassign_runs_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, series, min(runs, 1))
}
