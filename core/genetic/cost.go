package genetic

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fleetassign/core/model"
)

// Infeasible is the cost of a genome violating eligibility or fleet
// capacity bounds.
var Infeasible = math.Inf(1)

// Genome assigns a fleet position to every postcode.
type Genome []int

// Clone returns an independent copy of g.
func (g Genome) Clone() Genome { return append(Genome(nil), g...) }

// ToBinary expands g into a postcodes × fleets 0/1 matrix.
func ToBinary(g Genome, fleets int) *mat.Dense {
	b := mat.NewDense(len(g), fleets, nil)
	for p, f := range g {
		b.Set(p, f, 1)
	}
	return b
}

// Evaluator scores binary assignments against a cost model.
type Evaluator struct {
	model *model.CostModel

	// Simulate switches Evaluate to the Monte Carlo estimate.
	Simulate bool
	Trials   int
	rng      *rand.Rand
}

// NewEvaluator returns a deterministic evaluator. rng feeds the simulation
// when it is enabled.
func NewEvaluator(m *model.CostModel, rng *rand.Rand) *Evaluator {
	return &Evaluator{model: m, Trials: 50, rng: rng}
}

// quantities returns demand routed per cell.
func (e *Evaluator) quantities(bsol mat.Matrix) *mat.Dense {
	var q mat.Dense
	q.Apply(func(p, _ int, v float64) float64 { return v * e.model.Demand[p] }, bsol)
	return &q
}

func columnSums(m *mat.Dense) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = floats.Sum(mat.Col(nil, j, m))
	}
	return out
}

// Feasible reports whether every postcode is served by exactly one eligible
// fleet and every fleet load lies within [MinCap, MaxCap].
func (e *Evaluator) Feasible(bsol mat.Matrix) bool {
	var hit mat.Dense
	hit.MulElem(bsol, e.model.Avail)
	if mat.Sum(&hit) != float64(e.model.Postcodes()) {
		return false
	}
	loads := columnSums(e.quantities(bsol))
	for f, q := range loads {
		if q < e.model.MinCap[f] || q > e.model.MaxCap[f] {
			return false
		}
	}
	return true
}

// discount is the value of the quantity each fleet handles for free.
func (e *Evaluator) discount(loads []float64) float64 {
	var d float64
	for f, q := range loads {
		d += math.Min(q, e.model.Discount[f]) * e.model.Costs[f]
	}
	return d
}

func (e *Evaluator) hourlyCost(hours *mat.Dense) float64 {
	return floats.Dot(columnSums(hours), e.model.Costs)
}

// Cost is the deterministic cost of bsol: hours worked times hourly cost,
// minus the discount, floored at zero. Feasibility is not checked.
func (e *Evaluator) Cost(bsol mat.Matrix) float64 {
	q := e.quantities(bsol)
	var hours mat.Dense
	hours.DivElem(q, e.model.Prods)
	return math.Max(0, e.hourlyCost(&hours)-e.discount(columnSums(q)))
}

// SimulatedCost averages the cost of bsol over trials productivity draws.
// Only served cells are sampled.
func (e *Evaluator) SimulatedCost(bsol mat.Matrix, trials int, rng *rand.Rand) float64 {
	q := e.quantities(bsol)
	disc := e.discount(columnSums(q))
	rows, cols := q.Dims()
	hours := mat.NewDense(rows, cols, nil)
	costs := make([]float64, trials)
	for i := range costs {
		for p := 0; p < rows; p++ {
			for f := 0; f < cols; f++ {
				qty := q.At(p, f)
				if qty == 0 {
					hours.Set(p, f, 0)
					continue
				}
				hours.Set(p, f, qty/e.model.SampleProductivity(p, f, rng))
			}
		}
		costs[i] = math.Max(0, e.hourlyCost(hours)-disc)
	}
	if trials == 0 {
		return 0
	}
	return stat.Mean(costs, nil)
}

// Evaluate scores a genome: Infeasible when it breaks a constraint,
// otherwise the deterministic or simulated cost.
func (e *Evaluator) Evaluate(g Genome) float64 {
	b := ToBinary(g, e.model.Fleets())
	if !e.Feasible(b) {
		return Infeasible
	}
	if e.Simulate {
		return e.SimulatedCost(b, e.Trials, e.rng)
	}
	return e.Cost(b)
}
