package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CostData holds the raw inputs of the cost-based assignment problem solved
// by the genetic optimizer. Avail, Prods and StdDev are postcodes × fleets.
type CostData struct {
	Avail    *mat.Dense
	Demand   []float64
	Costs    []float64 // hourly cost of each fleet
	MaxCap   []float64
	MinCap   []float64
	Discount []float64 // quantity per fleet billed at no cost
	Prods    *mat.Dense
	StdDev   *mat.Dense
}

// CostModel is the validated form of CostData with the stochastic
// productivity distributions and eligible fleet lists derived once.
type CostModel struct {
	CostData

	postcodes, fleets int
	eligible          [][]int
	productivity      [][]distuv.LogNormal
}

// NewCostModel validates data and prepares the log-normal productivity of
// every postcode/fleet pair so that its mean is the supplied productivity.
func NewCostModel(data CostData) (*CostModel, error) {
	if data.Avail == nil {
		return nil, fmt.Errorf("%w: availability matrix missing", ErrMalformedInput)
	}
	np, nf := data.Avail.Dims()
	if np == 0 || nf == 0 {
		return nil, fmt.Errorf("%w: empty availability matrix", ErrMalformedInput)
	}
	if err := checkShape("productivity", data.Prods, np, nf); err != nil {
		return nil, err
	}
	if err := checkShape("stdev", data.StdDev, np, nf); err != nil {
		return nil, err
	}
	if len(data.Demand) != np {
		return nil, fmt.Errorf("%w: demand has %d values, want %d", ErrMalformedInput, len(data.Demand), np)
	}
	for name, v := range map[string][]float64{"costs": data.Costs, "maxcap": data.MaxCap, "mincap": data.MinCap, "discount": data.Discount} {
		if len(v) != nf {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrMalformedInput, name, len(v), nf)
		}
	}

	m := &CostModel{
		CostData:     data,
		postcodes:    np,
		fleets:       nf,
		eligible:     make([][]int, np),
		productivity: make([][]distuv.LogNormal, np),
	}
	m.Prods = clampDense(data.Prods, DelayFloor)
	for p := 0; p < np; p++ {
		for f := 0; f < nf; f++ {
			if data.Avail.At(p, f) == 1 {
				m.eligible[p] = append(m.eligible[p], f)
			}
		}
		if len(m.eligible[p]) == 0 {
			return nil, fmt.Errorf("%w: postcode %d has no eligible fleet", ErrMalformedInput, p)
		}
		m.productivity[p] = make([]distuv.LogNormal, nf)
		for f := 0; f < nf; f++ {
			m.productivity[p][f] = logNormalFor(m.Prods.At(p, f), data.StdDev.At(p, f))
		}
	}
	return m, nil
}

// logNormalFor derives the log-normal parameters whose mean is prod, with
// the variance taken as stdev*prod.
func logNormalFor(prod, stdev float64) distuv.LogNormal {
	variance := math.Max(stdev*prod, 0)
	phi := math.Sqrt(variance + prod*prod)
	return distuv.LogNormal{
		Mu:    math.Log(prod * prod / phi),
		Sigma: math.Sqrt(math.Log(phi * phi / (prod * prod))),
	}
}

// Postcodes returns the number of postcodes.
func (m *CostModel) Postcodes() int { return m.postcodes }

// Fleets returns the number of fleets.
func (m *CostModel) Fleets() int { return m.fleets }

// Eligible returns the fleets allowed to serve postcode p, in column order.
// The returned slice must not be modified.
func (m *CostModel) Eligible(p int) []int { return m.eligible[p] }

func (m *CostModel) dist(p, f int) distuv.LogNormal { return m.productivity[p][f] }

// SampleProductivity draws one productivity for fleet f at postcode p using
// rng, by inverse transform of a uniform draw in (0,1).
func (m *CostModel) SampleProductivity(p, f int, rng *rand.Rand) float64 {
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return math.Max(m.dist(p, f).Quantile(u), DelayFloor)
}
