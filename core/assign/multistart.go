package assign

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/fleetassign/core/events"
)

// MultiStart configures the multi-start search.
type MultiStart struct {
	Iterations   int     `json:"iterations"`
	BaselineBeta float64 `json:"baseline_beta"`
	MinBeta      float64 `json:"min_beta"`
	MaxBeta      float64 `json:"max_beta"`
	Mode         Mode    `json:"-"`

	// OnImprovement, when set, is called for the baseline and for every
	// iteration that replaces the incumbent.
	OnImprovement func(events.Improvement) `json:"-"`
}

// DefaultMultiStart returns the standard search settings.
func DefaultMultiStart() MultiStart {
	return MultiStart{Iterations: 3000, BaselineBeta: 0.9999, MinBeta: 0.1, MaxBeta: 0.3}
}

// Validate checks the beta bounds and the iteration count.
func (m MultiStart) Validate() error {
	if m.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", m.Iterations)
	}
	if m.MinBeta > m.MaxBeta {
		return fmt.Errorf("min_beta %.3f exceeds max_beta %.3f", m.MinBeta, m.MaxBeta)
	}
	return nil
}

// Result is the incumbent of a multi-start search.
type Result struct {
	Assignment   Assignment
	Value        float64
	Improvements int
	// Iteration that produced the incumbent, 0 for the baseline.
	Iteration int
}

// Search runs the baseline then Iterations randomised constructions and
// keeps the best assignment. Only strict improvements replace the
// incumbent, so the baseline wins ties.
func (m MultiStart) Search(c *Constructor, values mat.Matrix, rng *rand.Rand) Result {
	best := c.Run(m.Mode, m.BaselineBeta, rng)
	res := Result{Assignment: best, Value: Evaluate(best.Matrix, values)}
	m.notify(0, m.BaselineBeta, res.Value)

	for i := 1; i <= m.Iterations; i++ {
		beta := m.MinBeta + rng.Float64()*(m.MaxBeta-m.MinBeta)
		cand := c.Run(m.Mode, beta, rng)
		v := Evaluate(cand.Matrix, values)
		if v <= res.Value {
			continue
		}
		res.Assignment, res.Value, res.Iteration = cand, v, i
		res.Improvements++
		m.notify(i, beta, v)
	}
	return res
}

func (m MultiStart) notify(iter int, beta, value float64) {
	if m.OnImprovement == nil {
		return
	}
	m.OnImprovement(events.Improvement{Iteration: iter, Beta: beta, Value: value, Time: time.Now()})
}
