package metrics

import (
	"errors"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/fleetassign/core/events"
	coremetrics "github.com/kilianp07/fleetassign/core/metrics"
)

// PromSink exposes optimisation runs as Prometheus metrics.
type PromSink struct {
	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	objective    *prometheus.GaugeVec
	improvements prometheus.Counter
	bestCost     prometheus.Gauge
	meanCost     prometheus.Gauge
	fleetLoad    *prometheus.GaugeVec
}

// NewPromSink registers run metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetassign_runs_total",
		Help: "Total number of optimisation runs",
	}, []string{"strategy", "feasible"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetassign_run_duration_seconds",
		Help:    "Wall time of optimisation runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetassign_run_objective",
		Help: "Objective of the last run: total value for multistart, cost for genetic",
	}, []string{"strategy"})); err != nil {
		return nil, err
	}
	if s.improvements, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetassign_multistart_improvements_total",
		Help: "Number of times the multistart search replaced its incumbent",
	})); err != nil {
		return nil, err
	}
	if s.bestCost, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetassign_generation_best_cost",
		Help: "Best cost of the latest evaluated generation",
	})); err != nil {
		return nil, err
	}
	if s.meanCost, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleetassign_generation_mean_cost",
		Help: "Mean feasible cost of the latest evaluated generation",
	})); err != nil {
		return nil, err
	}
	if s.fleetLoad, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleetassign_fleet_assigned_quantity",
		Help: "Quantity assigned to each fleet by the last run",
	}, []string{"fleet_id"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRunResult counts the run and records its duration and objective.
func (s *PromSink) RecordRunResult(res coremetrics.RunResult) error {
	s.runs.WithLabelValues(res.Strategy, strconv.FormatBool(res.Feasible)).Inc()
	s.duration.WithLabelValues(res.Strategy).Observe(res.Duration.Seconds())
	if !math.IsInf(res.Objective, 0) {
		s.objective.WithLabelValues(res.Strategy).Set(res.Objective)
	}
	return nil
}

// RecordImprovement counts incumbent replacements. The baseline is not an
// improvement.
func (s *PromSink) RecordImprovement(ev events.Improvement) error {
	if ev.Iteration > 0 {
		s.improvements.Inc()
	}
	return nil
}

// RecordGeneration tracks the costs of the latest generation. Generations
// without feasible individuals leave the gauges unchanged.
func (s *PromSink) RecordGeneration(ev events.Generation) error {
	if !math.IsInf(ev.BestCost, 0) {
		s.bestCost.Set(ev.BestCost)
	}
	if !math.IsInf(ev.MeanCost, 0) {
		s.meanCost.Set(ev.MeanCost)
	}
	return nil
}

// RecordFleetLoads sets the assigned quantity of every fleet.
func (s *PromSink) RecordFleetLoads(loads []coremetrics.FleetLoad) error {
	for _, l := range loads {
		s.fleetLoad.WithLabelValues(strconv.Itoa(l.FleetID)).Set(l.Assigned)
	}
	return nil
}
