package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DelayFloor is the smallest delay or productivity accepted by the value and
// cost formulas. Lower values are clamped when a Problem is built.
const DelayFloor = 0.001

// ErrMalformedInput is returned when a problem cannot be optimised at all,
// for instance when a customer has no eligible fleet.
var ErrMalformedInput = errors.New("malformed problem input")

// Customer is a unit of demand, typically a postcode.
type Customer struct {
	ID     int
	Demand float64
}

// Fleet is a carrier able to serve a subset of customers.
type Fleet struct {
	ID          int
	MaxCapacity float64
	MaxVolume   float64
	MinVolume   float64
	// MaxShare is carried from the input data but no constraint uses it yet.
	MaxShare float64
}

// Metrics groups the per-pair and per-fleet indicators of a problem.
// Productivity, Delay and SuccessRate are customers × fleets; Cost and
// GreenCapacity hold one value per fleet.
type Metrics struct {
	Productivity  *mat.Dense
	Delay         *mat.Dense
	SuccessRate   *mat.Dense
	Cost          []float64
	GreenCapacity []float64
}

// Problem is an immutable snapshot of a fleet assignment instance. Rows of
// every matrix follow the order of Customers and columns the order of Fleets.
type Problem struct {
	Customers   []Customer
	Fleets      []Fleet
	Eligibility *mat.Dense
	Raw         Metrics
	Marginal    Metrics
}

// NewProblem validates the inputs, clamps degenerate delays and
// productivities and derives the marginal metrics.
func NewProblem(customers []Customer, fleets []Fleet, eligibility *mat.Dense, raw Metrics) (*Problem, error) {
	nc, nf := len(customers), len(fleets)
	if nc == 0 || nf == 0 {
		return nil, fmt.Errorf("%w: need at least one customer and one fleet", ErrMalformedInput)
	}
	if err := checkShape("eligibility", eligibility, nc, nf); err != nil {
		return nil, err
	}
	for name, m := range map[string]*mat.Dense{
		"productivity": raw.Productivity,
		"delay":        raw.Delay,
		"success rate": raw.SuccessRate,
	} {
		if err := checkShape(name, m, nc, nf); err != nil {
			return nil, err
		}
	}
	if len(raw.Cost) != nf || len(raw.GreenCapacity) != nf {
		return nil, fmt.Errorf("%w: cost and green capacity need %d values", ErrMalformedInput, nf)
	}
	for i, c := range customers {
		if c.Demand < 0 {
			return nil, fmt.Errorf("%w: customer %d has negative demand", ErrMalformedInput, c.ID)
		}
		if !anyEligible(eligibility.RawRowView(i)) {
			return nil, fmt.Errorf("%w: customer %d has no eligible fleet", ErrMalformedInput, c.ID)
		}
	}

	clamped := Metrics{
		Productivity:  clampDense(raw.Productivity, DelayFloor),
		Delay:         clampDense(raw.Delay, DelayFloor),
		SuccessRate:   mat.DenseCopyOf(raw.SuccessRate),
		Cost:          append([]float64(nil), raw.Cost...),
		GreenCapacity: append([]float64(nil), raw.GreenCapacity...),
	}
	return &Problem{
		Customers:   append([]Customer(nil), customers...),
		Fleets:      append([]Fleet(nil), fleets...),
		Eligibility: mat.DenseCopyOf(eligibility),
		Raw:         clamped,
		Marginal: Metrics{
			Productivity:  marginalColumns(clamped.Productivity, math.Max),
			Delay:         marginalColumns(clamped.Delay, math.Min),
			SuccessRate:   marginalColumns(clamped.SuccessRate, math.Max),
			Cost:          marginalVector(clamped.Cost, math.Min),
			GreenCapacity: marginalVector(clamped.GreenCapacity, math.Max),
		},
	}, nil
}

// Eligible reports whether fleet f may serve customer c.
func (p *Problem) Eligible(c, f int) bool { return p.Eligibility.At(c, f) == 1 }

func checkShape(name string, m *mat.Dense, rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%w: %s matrix missing", ErrMalformedInput, name)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: %s matrix is %dx%d, want %dx%d", ErrMalformedInput, name, r, c, rows, cols)
	}
	return nil
}

func anyEligible(row []float64) bool {
	for _, v := range row {
		if v == 1 {
			return true
		}
	}
	return false
}

func clampDense(m *mat.Dense, floor float64) *mat.Dense {
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, floor) }, out)
	return out
}

// marginalColumns divides every cell by the best value among the other
// fleets of the same row. best is math.Max or math.Min.
func marginalColumns(m *mat.Dense, best func(a, b float64) float64) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		for i := range row {
			out.Set(r, i, relative(row, i, best))
		}
	}
	return out
}

func marginalVector(v []float64, best func(a, b float64) float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = relative(v, i, best)
	}
	return out
}

// relative returns values[i] over the best competitor. Without competitors
// the fleet is its own reference and the ratio is 1; a zero reference
// carries no information and yields 0.
func relative(values []float64, i int, best func(a, b float64) float64) float64 {
	if len(values) == 1 {
		return 1
	}
	ref := math.NaN()
	for j, v := range values {
		if j == i {
			continue
		}
		if math.IsNaN(ref) {
			ref = v
			continue
		}
		ref = best(ref, v)
	}
	if ref == 0 {
		return 0
	}
	return values[i] / ref
}
