package assign

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/fleetassign/core/events"
	"github.com/kilianp07/fleetassign/core/model"
)

func ones(r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	m.Apply(func(_, _ int, _ float64) float64 { return 1 }, m)
	return m
}

func newProblem(t *testing.T, demands []float64, fleets []model.Fleet, elig *mat.Dense) *model.Problem {
	t.Helper()
	customers := make([]model.Customer, len(demands))
	for i, d := range demands {
		customers[i] = model.Customer{ID: i, Demand: d}
	}
	nc, nf := len(demands), len(fleets)
	if elig == nil {
		elig = ones(nc, nf)
	}
	p, err := model.NewProblem(customers, fleets, elig, model.Metrics{
		Productivity:  ones(nc, nf),
		Delay:         ones(nc, nf),
		SuccessRate:   ones(nc, nf),
		Cost:          make([]float64, nf),
		GreenCapacity: make([]float64, nf),
	})
	require.NoError(t, err)
	return p
}

func valuationOf(nc, nf int, edges ...Edge) Valuation {
	v := Valuation{Values: mat.NewDense(nc, nf, nil), Edges: edges}
	for _, e := range edges {
		v.Values.Set(e.Customer, e.Fleet, e.Value)
	}
	return v
}

func TestNewValuation(t *testing.T) {
	customers := []model.Customer{{ID: 0, Demand: 1}, {ID: 1, Demand: 1}}
	fleets := []model.Fleet{{ID: 0}, {ID: 1}}
	p, err := model.NewProblem(customers, fleets, mat.NewDense(2, 2, []float64{1, 1, 0, 1}), model.Metrics{
		Productivity:  mat.NewDense(2, 2, []float64{10, 5, 4, 8}),
		Delay:         mat.NewDense(2, 2, []float64{1, 2, 1, 4}),
		SuccessRate:   mat.NewDense(2, 2, []float64{0.9, 0.9, 0.5, 1}),
		Cost:          []float64{2, 4},
		GreenCapacity: []float64{10, 5},
	})
	require.NoError(t, err)

	v := NewValuation(p, DefaultWeights())
	require.Len(t, v.Edges, 3)
	assert.Equal(t, 0.0, v.Values.At(1, 0))

	mm := p.Marginal
	want := 0.2 * (mm.GreenCapacity[0] + mm.Productivity.At(0, 0) + mm.SuccessRate.At(0, 0) - mm.Delay.At(0, 0) - mm.Cost[0])
	assert.InDelta(t, want, v.Values.At(0, 0), 1e-12)
	// fleet-major order
	assert.Equal(t, Edge{Fleet: 0, Customer: 0, Value: v.Values.At(0, 0)}, v.Edges[0])
	assert.Equal(t, 1, v.Edges[1].Fleet)
	assert.Equal(t, 0, v.Edges[1].Customer)
	assert.Equal(t, 1, v.Edges[2].Customer)
}

func TestSamplerYieldsEveryElementOnce(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	rng := rand.New(rand.NewSource(7))
	for _, beta := range []float64{0, 0.2, 0.5, 0.9999, 1} {
		out := Permute(items, beta, rng)
		assert.ElementsMatch(t, items, out, "beta %v", beta)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, items, "input must not be modified")
}

func TestSamplerGreedyAndEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, []string{"a", "b", "c"}, Permute([]string{"a", "b", "c"}, 1, rng))

	s := NewSampler([]int(nil), 0.3, rng)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSamplerLenDecrements(t *testing.T) {
	s := NewSampler([]int{1, 2, 3}, 0.3, rand.New(rand.NewSource(3)))
	for want := 2; want >= 0; want-- {
		_, ok := s.Next()
		require.True(t, ok)
		assert.Equal(t, want, s.Len())
	}
}

func TestSamplerFavoursHead(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	rng := rand.New(rand.NewSource(11))
	const draws = 10000
	head := 0
	for i := 0; i < draws; i++ {
		if v, _ := NewSampler(items, 0.5, rng).Next(); v == 0 {
			head++
		}
	}
	assert.InDelta(t, 0.5, float64(head)/draws, 0.03)
}

func TestSamplerTinyBetaIsUniform(t *testing.T) {
	items := []int{0, 1, 2, 3}
	rng := rand.New(rand.NewSource(13))
	for _, beta := range []float64{1e-17, 1e-300} {
		assert.NotPanics(t, func() {
			assert.ElementsMatch(t, items, Permute(items, beta, rng))
		}, "beta %v", beta)
	}

	for _, beta := range []float64{1e-17, 1e-6} {
		const draws = 20000
		counts := make([]int, len(items))
		for i := 0; i < draws; i++ {
			v, _ := NewSampler(items, beta, rng).Next()
			counts[v]++
		}
		for v, n := range counts {
			assert.InDelta(t, 0.25, float64(n)/draws, 0.02, "beta %v item %d", beta, v)
		}
	}
}

func TestSamplerHighBetaIsNearlyGreedy(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	rng := rand.New(rand.NewSource(17))
	const draws = 5000
	head := 0
	for i := 0; i < draws; i++ {
		if Permute(items, 0.9999, rng)[0] == 0 {
			head++
		}
	}
	assert.Greater(t, float64(head)/draws, 0.99)
}

func TestCapacityRunGreedy(t *testing.T) {
	p := newProblem(t, []float64{5, 5}, []model.Fleet{{ID: 0, MaxCapacity: 10}, {ID: 1, MaxCapacity: 10}}, nil)
	v := valuationOf(2, 2,
		Edge{Fleet: 0, Customer: 0, Value: 0.9},
		Edge{Fleet: 1, Customer: 1, Value: 0.8},
		Edge{Fleet: 0, Customer: 1, Value: 0.3},
		Edge{Fleet: 1, Customer: 0, Value: 0.2},
	)
	c := NewConstructor(p, v)
	a := c.RunCapacityConstrained(0.9999, rand.New(rand.NewSource(42)))

	assert.Equal(t, []float64{1, 0, 0, 1}, a.Matrix.RawMatrix().Data)
	assert.InDelta(t, 1.7, Evaluate(a.Matrix, v.Values), 1e-9)
	assert.Equal(t, []float64{5, 5}, a.CapacityLevel)
	assert.Equal(t, []Allocation{{Customer: 0, Quantity: 5}}, a.Allocations[0])
}

func TestCapacityRunIsStrict(t *testing.T) {
	p := newProblem(t, []float64{10}, []model.Fleet{{ID: 0, MaxCapacity: 10}}, nil)
	c := NewConstructor(p, valuationOf(1, 1, Edge{Fleet: 0, Customer: 0, Value: 1}))
	a := c.RunCapacityConstrained(1, rand.New(rand.NewSource(1)))
	assert.Equal(t, 0.0, a.Matrix.At(0, 0))
	assert.Empty(t, a.Allocations[0])
}

func TestCapacityRunAssignsAtMostOnce(t *testing.T) {
	demands := []float64{1, 2, 3, 4, 5, 6}
	fleets := []model.Fleet{{ID: 0, MaxCapacity: 8}, {ID: 1, MaxCapacity: 8}, {ID: 2, MaxCapacity: 8}}
	p := newProblem(t, demands, fleets, nil)
	c := NewConstructor(p, NewValuation(p, DefaultWeights()))
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		a := c.RunCapacityConstrained(0.2, rng)
		for r := 0; r < len(demands); r++ {
			assert.LessOrEqual(t, mat.Sum(a.Matrix.RowView(r)), 1.0)
		}
		for f, fl := range fleets {
			assert.Less(t, a.CapacityLevel[f], fl.MaxCapacity)
		}
	}
}

func TestVolumeRunSplitsDemand(t *testing.T) {
	p := newProblem(t, []float64{10}, []model.Fleet{{ID: 0, MaxVolume: 6}, {ID: 1, MaxVolume: 100}}, nil)
	v := valuationOf(1, 2, Edge{Fleet: 0, Customer: 0, Value: 0.9}, Edge{Fleet: 1, Customer: 0, Value: 0.5})
	a := NewConstructor(p, v).RunVolumeConstrained(1, rand.New(rand.NewSource(1)))

	assert.InDelta(t, 0.6, a.Matrix.At(0, 0), 1e-9)
	assert.InDelta(t, 0.4, a.Matrix.At(0, 1), 1e-9)
	assert.Equal(t, []float64{6, 4}, a.VolumeLevel)

	report := a.FleetReport()
	require.Len(t, report, 2)
	assert.Equal(t, 6.0, report[0].Assigned)
	assert.Equal(t, 1, report[1].Customers)
}

func TestVolumeRunLeavesRemainderUnserved(t *testing.T) {
	p := newProblem(t, []float64{10}, []model.Fleet{{ID: 0, MaxVolume: 6}}, nil)
	v := valuationOf(1, 1, Edge{Fleet: 0, Customer: 0, Value: 0.7})
	a := NewConstructor(p, v).RunVolumeConstrained(0.9999, rand.New(rand.NewSource(1)))

	assert.InDelta(t, 0.6, a.Matrix.At(0, 0), 1e-9)
	assert.InDelta(t, 0.4, 1-a.Matrix.At(0, 0), 1e-9)
	assert.Equal(t, []float64{6}, a.VolumeLevel)
	assert.Equal(t, []Allocation{{Customer: 0, Quantity: 6}}, a.Allocations[0])
}

func TestVolumeRunRespectsMaxVolume(t *testing.T) {
	demands := []float64{3, 7, 2, 9}
	fleets := []model.Fleet{{ID: 0, MaxVolume: 5}, {ID: 1, MaxVolume: 8}}
	p := newProblem(t, demands, fleets, nil)
	c := NewConstructor(p, NewValuation(p, DefaultWeights()))
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 50; i++ {
		a := c.RunVolumeConstrained(0.3, rng)
		for f, fl := range fleets {
			assert.LessOrEqual(t, a.VolumeLevel[f], fl.MaxVolume)
		}
		var served float64
		for f := range fleets {
			for _, al := range a.Allocations[f] {
				served += al.Quantity
			}
		}
		assert.InDelta(t, 13.0, served, 1e-9)
	}
}

func TestMinVolumeFirst(t *testing.T) {
	fleets := []model.Fleet{{ID: 0, MaxVolume: 100}, {ID: 1, MaxVolume: 100, MinVolume: 4}}
	p := newProblem(t, []float64{10}, fleets, nil)
	v := valuationOf(1, 2, Edge{Fleet: 0, Customer: 0, Value: 0.9}, Edge{Fleet: 1, Customer: 0, Value: 0.1})

	c := NewConstructor(p, v)
	a := c.RunVolumeConstrained(1, rand.New(rand.NewSource(1)))
	assert.Equal(t, []float64{10, 0}, a.VolumeLevel)
	assert.True(t, a.FleetReport()[1].BelowMin)

	c.MinVolumeFirst = true
	a = c.RunVolumeConstrained(1, rand.New(rand.NewSource(1)))
	assert.Equal(t, []float64{6, 4}, a.VolumeLevel)
	assert.False(t, a.FleetReport()[1].BelowMin)
}

func TestRunsDoNotShareState(t *testing.T) {
	p := newProblem(t, []float64{4, 4}, []model.Fleet{{ID: 0, MaxCapacity: 5}}, nil)
	c := NewConstructor(p, NewValuation(p, DefaultWeights()))
	first := c.RunCapacityConstrained(1, rand.New(rand.NewSource(1)))
	second := c.RunCapacityConstrained(1, rand.New(rand.NewSource(1)))
	assert.Equal(t, first.Matrix.RawMatrix().Data, second.Matrix.RawMatrix().Data)
	assert.Equal(t, 4.0, second.CapacityLevel[0])
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Volume")
	require.NoError(t, err)
	assert.Equal(t, VolumeConstrained, m)
	assert.Equal(t, "capacity", CapacityConstrained.String())
	_, err = ParseMode("weight")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestMultiStartKeepsBest(t *testing.T) {
	demands := []float64{2, 3, 4, 5, 6}
	fleets := []model.Fleet{{ID: 0, MaxCapacity: 9}, {ID: 1, MaxCapacity: 9}}
	p := newProblem(t, demands, fleets, nil)
	v := valuationOf(5, 2,
		Edge{Fleet: 0, Customer: 0, Value: 0.2}, Edge{Fleet: 0, Customer: 1, Value: 0.9},
		Edge{Fleet: 0, Customer: 2, Value: 0.4}, Edge{Fleet: 0, Customer: 3, Value: 0.7},
		Edge{Fleet: 0, Customer: 4, Value: 0.1}, Edge{Fleet: 1, Customer: 0, Value: 0.6},
		Edge{Fleet: 1, Customer: 1, Value: 0.3}, Edge{Fleet: 1, Customer: 2, Value: 0.8},
		Edge{Fleet: 1, Customer: 3, Value: 0.5}, Edge{Fleet: 1, Customer: 4, Value: 0.9},
	)
	c := NewConstructor(p, v)

	var seen []events.Improvement
	ms := DefaultMultiStart()
	ms.Iterations = 200
	ms.OnImprovement = func(e events.Improvement) { seen = append(seen, e) }
	res := ms.Search(c, v.Values, rand.New(rand.NewSource(3)))

	require.NotEmpty(t, seen)
	assert.Equal(t, 0, seen[0].Iteration)
	assert.Len(t, seen, res.Improvements+1)
	assert.InDelta(t, res.Value, Evaluate(res.Assignment.Matrix, v.Values), 1e-12)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].Value, seen[i-1].Value)
	}
}

func TestTwoCustomersTwoFleetsAllServed(t *testing.T) {
	fleets := []model.Fleet{{ID: 0, MaxCapacity: 15}, {ID: 1, MaxCapacity: 30}}
	p := newProblem(t, []float64{10, 20}, fleets, nil)
	want := []float64{1, 0, 0, 1}

	// customer 1 only fits fleet 1 and customer 0 only fits next to it on fleet 0
	v := valuationOf(2, 2,
		Edge{Fleet: 0, Customer: 0, Value: 0.8}, Edge{Fleet: 0, Customer: 1, Value: 0.3},
		Edge{Fleet: 1, Customer: 0, Value: 0.4}, Edge{Fleet: 1, Customer: 1, Value: 0.6},
	)
	base := NewConstructor(p, v).RunCapacityConstrained(0.9999, rand.New(rand.NewSource(1)))
	assert.Equal(t, want, base.Matrix.RawMatrix().Data)
	assert.Equal(t, []float64{10, 20}, base.CapacityLevel)

	// the greedy baseline puts customer 0 on fleet 1 and strands customer 1
	v = valuationOf(2, 2,
		Edge{Fleet: 0, Customer: 0, Value: 0.5}, Edge{Fleet: 0, Customer: 1, Value: 0.1},
		Edge{Fleet: 1, Customer: 0, Value: 0.9}, Edge{Fleet: 1, Customer: 1, Value: 0.5},
	)
	c := NewConstructor(p, v)
	stranded := c.RunCapacityConstrained(0.9999, rand.New(rand.NewSource(1)))
	assert.Equal(t, []float64{0, 1, 0, 0}, stranded.Matrix.RawMatrix().Data)

	ms := DefaultMultiStart()
	ms.Iterations = 200
	res := ms.Search(c, v.Values, rand.New(rand.NewSource(2)))
	assert.Equal(t, want, res.Assignment.Matrix.RawMatrix().Data)
	assert.InDelta(t, 1.0, res.Value, 1e-12)
	assert.Greater(t, res.Iteration, 0)
	for f, fl := range fleets {
		assert.Less(t, res.Assignment.CapacityLevel[f], fl.MaxCapacity)
	}
}

func TestMultiStartZeroIterationsIsBaseline(t *testing.T) {
	p := newProblem(t, []float64{1, 1}, []model.Fleet{{ID: 0, MaxCapacity: 5}, {ID: 1, MaxCapacity: 5}}, nil)
	v := NewValuation(p, DefaultWeights())
	ms := DefaultMultiStart()
	ms.Iterations = 0
	res := ms.Search(NewConstructor(p, v), v.Values, rand.New(rand.NewSource(1)))
	assert.Equal(t, 0, res.Iteration)
	assert.Equal(t, 0, res.Improvements)
}

func TestMultiStartValidate(t *testing.T) {
	ms := DefaultMultiStart()
	assert.NoError(t, ms.Validate())
	ms.MinBeta = 0.5
	assert.Error(t, ms.Validate())
}
