package events

import "time"

// Event is implemented by every progress event.
type Event interface {
	EventRunID() string
}

// Improvement is published when a multi-start iteration replaces the
// incumbent. Iteration 0 is the greedy baseline.
type Improvement struct {
	RunID     string
	Iteration int
	Beta      float64
	Value     float64
	Time      time.Time
}

// Generation summarises one generation of the genetic optimizer. MeanCost
// only covers feasible individuals.
type Generation struct {
	RunID      string
	Generation int
	BestCost   float64
	MeanCost   float64
	Feasible   int
	Population int
	Time       time.Time
}

// RunCompleted is published once a run has been evaluated and recorded.
type RunCompleted struct {
	RunID     string
	Strategy  string
	Objective float64
	Duration  time.Duration
	Time      time.Time
}

func (e Improvement) EventRunID() string  { return e.RunID }
func (e Generation) EventRunID() string   { return e.RunID }
func (e RunCompleted) EventRunID() string { return e.RunID }
