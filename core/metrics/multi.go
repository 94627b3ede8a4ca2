package metrics

import "github.com/kilianp07/fleetassign/core/events"

// MultiSink fans records out to multiple sinks. Optional records only reach
// the sinks implementing the matching recorder.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRunResult forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordRunResult(res RunResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordRunResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordImprovement forwards multi-start improvements.
func (m *MultiSink) RecordImprovement(ev events.Improvement) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ImprovementRecorder); ok {
			if err := rec.RecordImprovement(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordGeneration forwards generation statistics.
func (m *MultiSink) RecordGeneration(ev events.Generation) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(GenerationRecorder); ok {
			if err := rec.RecordGeneration(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetLoads forwards per-fleet loads.
func (m *MultiSink) RecordFleetLoads(loads []FleetLoad) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FleetLoadRecorder); ok {
			if err := rec.RecordFleetLoads(loads); err != nil {
				return err
			}
		}
	}
	return nil
}
