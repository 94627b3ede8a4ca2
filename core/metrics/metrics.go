package metrics

import (
	"time"

	"github.com/kilianp07/fleetassign/core/events"
)

// RunResult describes a finished optimisation run.
type RunResult struct {
	RunID     string
	Strategy  string
	Mode      string
	Objective float64
	Feasible  bool
	// Iterations counts multi-start iterations or GA generations.
	Iterations   int
	Improvements int
	Duration     time.Duration
	Time         time.Time
}

// MetricsSink records completed runs for observability purposes.
type MetricsSink interface {
	RecordRunResult(res RunResult) error
}

// ImprovementRecorder records multi-start improvements.
type ImprovementRecorder interface {
	RecordImprovement(ev events.Improvement) error
}

// GenerationRecorder records genetic optimizer generations.
type GenerationRecorder interface {
	RecordGeneration(ev events.Generation) error
}

// FleetLoad is the quantity a run gave to one fleet.
type FleetLoad struct {
	RunID     string
	FleetID   int
	Customers int
	Assigned  float64
	MinVolume float64
	MaxVolume float64
	Time      time.Time
}

// FleetLoadRecorder records the per-fleet outcome of a run.
type FleetLoadRecorder interface {
	RecordFleetLoads(loads []FleetLoad) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRunResult(RunResult) error            { return nil }
func (NopSink) RecordImprovement(events.Improvement) error { return nil }
func (NopSink) RecordGeneration(events.Generation) error   { return nil }
func (NopSink) RecordFleetLoads([]FleetLoad) error         { return nil }
