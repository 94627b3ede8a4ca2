// Package app wires the optimizers to the run log, the metrics sinks, the
// allocation publisher and error monitoring.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetassign/api/runs"
	"github.com/kilianp07/fleetassign/config"
	"github.com/kilianp07/fleetassign/core/assign"
	"github.com/kilianp07/fleetassign/core/events"
	"github.com/kilianp07/fleetassign/core/genetic"
	coremetrics "github.com/kilianp07/fleetassign/core/metrics"
	"github.com/kilianp07/fleetassign/core/model"
	coremon "github.com/kilianp07/fleetassign/core/monitoring"
	coremqtt "github.com/kilianp07/fleetassign/core/mqtt"
	"github.com/kilianp07/fleetassign/core/runlog"
	"github.com/kilianp07/fleetassign/infra/logger"
	"github.com/kilianp07/fleetassign/infra/metrics"
	"github.com/kilianp07/fleetassign/infra/monitoring"
	"github.com/kilianp07/fleetassign/infra/mqtt"
	"github.com/kilianp07/fleetassign/internal/eventbus"
)

const (
	StrategyMultiStart = "multistart"
	StrategyGenetic    = "genetic"
)

// Deps are the collaborators of a Service. Nil fields get no-op
// implementations.
type Deps struct {
	Sink      coremetrics.MetricsSink
	Store     runlog.Store
	Publisher coremqtt.AllocationPublisher
	Logger    logger.Logger
}

// Service runs optimisations and reports their outcome.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	bus       *eventbus.TypedBus[events.Event]
	sink      coremetrics.MetricsSink
	store     runlog.Store
	publisher coremqtt.AllocationPublisher

	stopCollector context.CancelFunc
	collectorDone <-chan struct{}

	newRunID func() string
	now      func() time.Time
}

// New creates a Service and its collaborators from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	pub, err := mqtt.NewAllocationPublisher(cfg.MQTT)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("mqtt publisher: %w", err)
	}
	return NewWithDeps(cfg, Deps{Sink: sink, Store: store, Publisher: pub}), nil
}

// NewWithDeps creates a Service around existing collaborators and starts
// forwarding progress events to the sink.
func NewWithDeps(cfg *config.Config, d Deps) *Service {
	if d.Sink == nil {
		d.Sink = coremetrics.NopSink{}
	}
	if d.Store == nil {
		d.Store = runlog.NopStore{}
	}
	if d.Publisher == nil {
		d.Publisher = coremqtt.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.New("service")
	}
	s := &Service{
		cfg:       cfg,
		log:       d.Logger,
		bus:       eventbus.NewTyped[events.Event](),
		sink:      d.Sink,
		store:     d.Store,
		publisher: d.Publisher,
		newRunID:  uuid.NewString,
		now:       time.Now,
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopCollector = cancel
	s.collectorDone = metrics.StartEventCollector(ctx, s.bus, s.sink)
	return s
}

// Events returns the bus carrying progress events.
func (s *Service) Events() eventbus.Bus[events.Event] { return s.bus }

// Store returns the run log.
func (s *Service) Store() runlog.Store { return s.store }

// Serve exposes Prometheus metrics and the run log API until ctx is done.
// It returns immediately when no address is configured.
func (s *Service) Serve(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusAddr == "" {
		return nil
	}
	return metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr, map[string]http.Handler{
		runs.Path: runs.NewHandler(s.store, s.cfg.API.Token),
	})
}

// SolveResult is the outcome of a multi-start run.
type SolveResult struct {
	RunID  string
	Search assign.Result
	// Unserved lists customer positions whose demand is not fully covered.
	Unserved []int
	Duration time.Duration
}

// Feasible reports whether every customer was served.
func (r SolveResult) Feasible() bool { return len(r.Unserved) == 0 }

// Solve runs the multi-start search on p. source names the problem in the
// run log.
func (s *Service) Solve(ctx context.Context, p *model.Problem, source string) (*SolveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms, err := s.cfg.Solver.MultiStart()
	if err != nil {
		return nil, err
	}
	runID := s.newRunID()
	start := s.now()

	valuation := assign.NewValuation(p, s.cfg.Solver.Weights)
	s.log.Debugw("edge valuation", map[string]any{
		"run_id":    runID,
		"edges":     len(valuation.Edges),
		"customers": len(p.Customers),
		"fleets":    len(p.Fleets),
	})
	c := assign.NewConstructor(p, valuation)
	c.MinVolumeFirst = s.cfg.Solver.MinVolumeFirst
	ms.OnImprovement = func(ev events.Improvement) {
		ev.RunID = runID
		s.bus.Publish(ev)
		s.log.Debugf("run %s iteration %d improved to %.4f (beta %.4f)", runID, ev.Iteration, ev.Value, ev.Beta)
	}

	search := ms.Search(c, valuation.Values, rngFor(s.cfg.Solver.Seed))
	res := &SolveResult{
		RunID:    runID,
		Search:   search,
		Unserved: unserved(p, search.Assignment),
		Duration: s.now().Sub(start),
	}
	s.log.Infof("run %s: %s multistart value %.4f after %d improvements", runID, ms.Mode, search.Value, search.Improvements)
	fleetReport := search.Assignment.FleetReport()
	for _, l := range fleetReport {
		if l.BelowMin {
			s.log.Warnf("run %s: fleet %d assigned %.2f below its minimum volume %.2f", runID, l.FleetID, l.Assigned, l.MinVolume)
		}
	}

	rec := runlog.Record{
		RunID:      runID,
		Strategy:   StrategyMultiStart,
		Mode:       ms.Mode.String(),
		Problem:    source,
		Timestamp:  start,
		Duration:   res.Duration,
		Objective:  finiteOrZero(search.Value),
		Feasible:   res.Feasible(),
		Iterations: ms.Iterations,
		Params: map[string]any{
			"iterations":       ms.Iterations,
			"baseline_beta":    ms.BaselineBeta,
			"min_beta":         ms.MinBeta,
			"max_beta":         ms.MaxBeta,
			"weights":          s.cfg.Solver.Weights,
			"min_volume_first": c.MinVolumeFirst,
			"seed":             s.cfg.Solver.Seed,
		},
	}
	allocs := make([]coremqtt.FleetAllocation, len(fleetReport))
	loads := make([]coremetrics.FleetLoad, len(fleetReport))
	for f, l := range fleetReport {
		rec.Loads = append(rec.Loads, runlog.Load{FleetID: l.FleetID, Customers: l.Customers, Assigned: l.Assigned})
		loads[f] = coremetrics.FleetLoad{FleetID: l.FleetID, Customers: l.Customers, Assigned: l.Assigned, MinVolume: l.MinVolume, MaxVolume: l.MaxVolume}
		a := coremqtt.FleetAllocation{FleetID: l.FleetID, Assigned: l.Assigned}
		for _, al := range search.Assignment.Allocations[f] {
			a.Shares = append(a.Shares, coremqtt.Share{CustomerID: p.Customers[al.Customer].ID, Quantity: al.Quantity})
		}
		allocs[f] = a
	}
	return res, s.report(ctx, rec, search.Improvements, allocs, loads)
}

// EvolveResult is the outcome of a genetic run.
type EvolveResult struct {
	RunID    string
	GA       genetic.Result
	Duration time.Duration
}

// Feasible reports whether the best individual respects the capacities.
func (r EvolveResult) Feasible() bool { return !math.IsInf(r.GA.Cost, 1) }

// Evolve runs the genetic optimizer on m. source names the problem in the
// run log.
func (s *Service) Evolve(ctx context.Context, m *model.CostModel, source string) (*EvolveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opt, err := genetic.New(m, s.cfg.Genetic)
	if err != nil {
		return nil, err
	}
	runID := s.newRunID()
	start := s.now()
	opt.OnGeneration = func(ev events.Generation) {
		ev.RunID = runID
		s.bus.Publish(ev)
	}

	ga := opt.Run(rngFor(s.cfg.Genetic.Seed))
	res := &EvolveResult{RunID: runID, GA: ga, Duration: s.now().Sub(start)}
	if res.Feasible() {
		s.log.Infof("run %s: genetic cost %.4f (deterministic %.4f, stochastic %.4f)", runID, ga.Cost, ga.DeterministicCost, ga.StochasticCost)
	} else {
		s.log.Warnf("run %s: genetic search found no feasible assignment", runID)
	}

	cfg := opt.Config()
	rec := runlog.Record{
		RunID:      runID,
		Strategy:   StrategyGenetic,
		Problem:    source,
		Timestamp:  start,
		Duration:   res.Duration,
		Objective:  finiteOrZero(ga.Cost),
		Feasible:   res.Feasible(),
		Iterations: cfg.Generations,
		Solution:   append([]int(nil), ga.Best...),
		Params: map[string]any{
			"population_size": cfg.PopulationSize,
			"crossover":       cfg.Crossover,
			"mutation":        cfg.Mutation,
			"generations":     cfg.Generations,
			"beta":            cfg.Beta,
			"simulate":        cfg.Simulate,
			"trials":          cfg.Trials,
			"seed":            cfg.Seed,
		},
	}
	allocs := make([]coremqtt.FleetAllocation, m.Fleets())
	for f := range allocs {
		allocs[f].FleetID = f
	}
	for p, f := range ga.Best {
		allocs[f].Assigned += m.Demand[p]
		allocs[f].Shares = append(allocs[f].Shares, coremqtt.Share{CustomerID: p, Quantity: m.Demand[p]})
	}
	loads := make([]coremetrics.FleetLoad, len(allocs))
	for f, a := range allocs {
		rec.Loads = append(rec.Loads, runlog.Load{FleetID: a.FleetID, Customers: len(a.Shares), Assigned: a.Assigned})
		loads[f] = coremetrics.FleetLoad{FleetID: a.FleetID, Customers: len(a.Shares), Assigned: a.Assigned, MinVolume: m.MinCap[f], MaxVolume: m.MaxCap[f]}
	}
	return res, s.report(ctx, rec, 0, allocs, loads)
}

// report persists rec, feeds the metrics sink and publishes allocations.
// Sink and publisher failures are logged and sent to monitoring; a run log
// failure is returned.
func (s *Service) report(ctx context.Context, rec runlog.Record, improvements int, allocs []coremqtt.FleetAllocation, loads []coremetrics.FleetLoad) error {
	tags := map[string]string{"run_id": rec.RunID, "strategy": rec.Strategy}
	now := s.now()

	if err := s.sink.RecordRunResult(coremetrics.RunResult{
		RunID:        rec.RunID,
		Strategy:     rec.Strategy,
		Mode:         rec.Mode,
		Objective:    rec.Objective,
		Feasible:     rec.Feasible,
		Iterations:   rec.Iterations,
		Improvements: improvements,
		Duration:     rec.Duration,
		Time:         now,
	}); err != nil {
		s.fail(err, tags, "record run result")
	}
	if r, ok := s.sink.(coremetrics.FleetLoadRecorder); ok {
		for i := range loads {
			loads[i].RunID, loads[i].Time = rec.RunID, now
		}
		if err := r.RecordFleetLoads(loads); err != nil {
			s.fail(err, tags, "record fleet loads")
		}
	}

	var pubErrs []error
	for _, a := range allocs {
		if len(a.Shares) == 0 {
			continue
		}
		a.RunID, a.Strategy, a.Timestamp = rec.RunID, rec.Strategy, now
		if err := s.publisher.PublishAllocation(ctx, a); err != nil {
			pubErrs = append(pubErrs, fmt.Errorf("fleet %d: %w", a.FleetID, err))
		}
	}
	if err := errors.Join(pubErrs...); err != nil {
		s.fail(err, tags, "publish allocations")
	}

	s.bus.Publish(events.RunCompleted{
		RunID:     rec.RunID,
		Strategy:  rec.Strategy,
		Objective: rec.Objective,
		Duration:  rec.Duration,
		Time:      now,
	})

	if err := s.store.Append(ctx, rec); err != nil {
		s.fail(err, tags, "append run log")
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

func (s *Service) fail(err error, tags map[string]string, what string) {
	s.log.Errorf("run %s: %s: %v", tags["run_id"], what, err)
	coremon.CaptureException(fmt.Errorf("%s: %w", what, err), tags)
}

// Close stops the event collector and releases the collaborators.
func (s *Service) Close() error {
	s.stopCollector()
	<-s.collectorDone
	s.bus.Close()
	s.publisher.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.store.Close()
}

func rngFor(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func finiteOrZero(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// unserved returns the customers whose allocations do not cover their
// demand.
func unserved(p *model.Problem, a assign.Assignment) []int {
	served := make([]float64, len(p.Customers))
	for _, allocs := range a.Allocations {
		for _, al := range allocs {
			served[al.Customer] += al.Quantity
		}
	}
	var out []int
	for c, cust := range p.Customers {
		if served[c] < cust.Demand-1e-9 {
			out = append(out, c)
		}
	}
	return out
}
