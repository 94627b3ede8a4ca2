package assign

import (
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/fleetassign/core/model"
)

// Weights balance the marginal metrics in the edge value. They are expected
// to sum to one but this is not enforced.
type Weights struct {
	Green        float64 `json:"green"`
	Cost         float64 `json:"cost"`
	Productivity float64 `json:"productivity"`
	Delay        float64 `json:"delay"`
	SuccessRate  float64 `json:"success_rate"`
}

// DefaultWeights gives every criterion the same importance.
func DefaultWeights() Weights {
	return Weights{Green: 0.2, Cost: 0.2, Productivity: 0.2, Delay: 0.2, SuccessRate: 0.2}
}

// Edge is an eligible (fleet, customer) pair and its desirability. Fleet and
// Customer are positions in the problem slices.
type Edge struct {
	Fleet    int
	Customer int
	Value    float64
}

// Valuation holds the value of every eligible pair, both as a dense
// customers × fleets matrix (zero where ineligible) and as an edge list.
type Valuation struct {
	Values *mat.Dense
	Edges  []Edge
}

// NewValuation scores every eligible pair of p with w.
func NewValuation(p *model.Problem, w Weights) Valuation {
	nc, nf := len(p.Customers), len(p.Fleets)
	mm := p.Marginal
	v := Valuation{Values: mat.NewDense(nc, nf, nil)}
	for f := 0; f < nf; f++ {
		for c := 0; c < nc; c++ {
			if !p.Eligible(c, f) {
				continue
			}
			value := w.Green*mm.GreenCapacity[f] +
				w.Productivity*mm.Productivity.At(c, f) +
				w.SuccessRate*mm.SuccessRate.At(c, f) -
				w.Delay*mm.Delay.At(c, f) -
				w.Cost*mm.Cost[f]
			v.Values.Set(c, f, value)
			v.Edges = append(v.Edges, Edge{Fleet: f, Customer: c, Value: value})
		}
	}
	return v
}
