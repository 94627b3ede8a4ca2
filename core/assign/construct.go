package assign

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/fleetassign/core/model"
)

// Mode selects the constraint honoured by the constructive heuristic.
type Mode int

const (
	// CapacityConstrained assigns whole customers while the fleet stays
	// strictly below its maximum capacity.
	CapacityConstrained Mode = iota
	// VolumeConstrained splits customer demand across fleets up to their
	// maximum volume.
	VolumeConstrained
)

// ErrUnknownMode is returned by ParseMode for unrecognised names.
var ErrUnknownMode = errors.New("unknown construction mode")

func (m Mode) String() string {
	switch m {
	case CapacityConstrained:
		return "capacity"
	case VolumeConstrained:
		return "volume"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "capacity" or "volume" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "capacity", "":
		return CapacityConstrained, nil
	case "volume":
		return VolumeConstrained, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Allocation is a quantity of a customer's demand given to a fleet.
type Allocation struct {
	Customer int
	Quantity float64
}

// Assignment is the outcome of one constructive run.
type Assignment struct {
	Mode Mode
	// Matrix is customers × fleets. Capacity runs hold 0/1 cells, volume runs
	// hold served fractions rounded to two decimals.
	Matrix *mat.Dense
	// Allocations lists, per fleet position, what was given in order.
	Allocations   [][]Allocation
	CapacityLevel []float64
	VolumeLevel   []float64

	fleets []model.Fleet
}

// FleetLoad summarises what a fleet received in an Assignment.
type FleetLoad struct {
	FleetID   int     `json:"fleet_id"`
	Customers int     `json:"customers"`
	Assigned  float64 `json:"assigned"`
	MinVolume float64 `json:"min_volume"`
	MaxVolume float64 `json:"max_volume"`
	BelowMin  bool    `json:"below_min"`
}

// FleetReport returns the assigned quantity of every fleet next to its
// volume bounds.
func (a Assignment) FleetReport() []FleetLoad {
	out := make([]FleetLoad, len(a.Allocations))
	for f, allocs := range a.Allocations {
		load := FleetLoad{Customers: len(allocs)}
		for _, al := range allocs {
			load.Assigned += al.Quantity
		}
		if f < len(a.fleets) {
			fl := a.fleets[f]
			load.FleetID = fl.ID
			load.MinVolume = fl.MinVolume
			load.MaxVolume = fl.MaxVolume
			load.BelowMin = load.Assigned < fl.MinVolume
		}
		out[f] = load
	}
	return out
}

// runState is the bookkeeping of a single run, indexed by position.
type runState struct {
	capacityLevel []float64
	volumeLevel   []float64
	assigned      []bool
	assignedQty   []float64
	allocations   [][]Allocation
	matrix        *mat.Dense
}

func newRunState(nc, nf int) *runState {
	return &runState{
		capacityLevel: make([]float64, nf),
		volumeLevel:   make([]float64, nf),
		assigned:      make([]bool, nc),
		assignedQty:   make([]float64, nc),
		allocations:   make([][]Allocation, nf),
		matrix:        mat.NewDense(nc, nf, nil),
	}
}

func (s *runState) give(c, f int, qty float64) {
	s.allocations[f] = append(s.allocations[f], Allocation{Customer: c, Quantity: qty})
	s.assignedQty[c] += qty
}

// Constructor builds assignments for a fixed problem and valuation.
type Constructor struct {
	problem *model.Problem
	ranked  []Edge

	// MinVolumeFirst makes volume runs first top every fleet up to its
	// minimum volume, walking the ranked edges greedily. Off by default.
	MinVolumeFirst bool
}

// NewConstructor ranks the edges of v by decreasing value. Ties keep the
// valuation order.
func NewConstructor(p *model.Problem, v Valuation) *Constructor {
	ranked := append([]Edge(nil), v.Edges...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })
	return &Constructor{problem: p, ranked: ranked}
}

// Run dispatches to the heuristic of the given mode.
func (c *Constructor) Run(mode Mode, beta float64, rng *rand.Rand) Assignment {
	if mode == VolumeConstrained {
		return c.RunVolumeConstrained(beta, rng)
	}
	return c.RunCapacityConstrained(beta, rng)
}

// RunCapacityConstrained assigns every customer at most once, in full, to
// the first drawn fleet that keeps its capacity level strictly below
// MaxCapacity.
func (c *Constructor) RunCapacityConstrained(beta float64, rng *rand.Rand) Assignment {
	st := c.newState()
	s := NewSampler(c.ranked, beta, rng)
	for e, ok := s.Next(); ok; e, ok = s.Next() {
		if st.assigned[e.Customer] {
			continue
		}
		demand := c.problem.Customers[e.Customer].Demand
		if st.capacityLevel[e.Fleet]+demand >= c.problem.Fleets[e.Fleet].MaxCapacity {
			continue
		}
		st.assigned[e.Customer] = true
		st.capacityLevel[e.Fleet] += demand
		st.give(e.Customer, e.Fleet, demand)
		st.matrix.Set(e.Customer, e.Fleet, st.matrix.At(e.Customer, e.Fleet)+1)
	}
	return c.finish(CapacityConstrained, st)
}

// RunVolumeConstrained splits customer demand over the drawn fleets until
// each customer is served or no fleet has volume left. Minimum volumes are
// only considered when MinVolumeFirst is set.
func (c *Constructor) RunVolumeConstrained(beta float64, rng *rand.Rand) Assignment {
	st := c.newState()
	if c.MinVolumeFirst {
		c.fillMinVolumes(st)
	}
	s := NewSampler(c.ranked, beta, rng)
	for e, ok := s.Next(); ok; e, ok = s.Next() {
		demand := c.problem.Customers[e.Customer].Demand
		if st.assignedQty[e.Customer] >= demand {
			continue
		}
		limit := c.problem.Fleets[e.Fleet].MaxVolume
		if st.volumeLevel[e.Fleet] >= limit {
			continue
		}
		qty := math.Min(demand-st.assignedQty[e.Customer], limit-st.volumeLevel[e.Fleet])
		c.giveVolume(st, e, qty, demand)
	}
	return c.finish(VolumeConstrained, st)
}

func (c *Constructor) fillMinVolumes(st *runState) {
	for f, fl := range c.problem.Fleets {
		for _, e := range c.ranked {
			if e.Fleet != f {
				continue
			}
			if st.volumeLevel[f] >= fl.MinVolume {
				break
			}
			demand := c.problem.Customers[e.Customer].Demand
			if st.assignedQty[e.Customer] >= demand {
				continue
			}
			qty := math.Min(demand-st.assignedQty[e.Customer], fl.MinVolume-st.volumeLevel[f])
			c.giveVolume(st, e, qty, demand)
		}
	}
}

func (c *Constructor) giveVolume(st *runState, e Edge, qty, demand float64) {
	st.volumeLevel[e.Fleet] += qty
	st.give(e.Customer, e.Fleet, qty)
	st.matrix.Set(e.Customer, e.Fleet, st.matrix.At(e.Customer, e.Fleet)+round2(qty/demand))
}

func (c *Constructor) newState() *runState {
	return newRunState(len(c.problem.Customers), len(c.problem.Fleets))
}

func (c *Constructor) finish(mode Mode, st *runState) Assignment {
	return Assignment{
		Mode:          mode,
		Matrix:        st.matrix,
		Allocations:   st.allocations,
		CapacityLevel: st.capacityLevel,
		VolumeLevel:   st.volumeLevel,
		fleets:        c.problem.Fleets,
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
