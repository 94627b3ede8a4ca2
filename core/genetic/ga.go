package genetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fleetassign/core/assign"
	"github.com/kilianp07/fleetassign/core/events"
	"github.com/kilianp07/fleetassign/core/model"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid genetic configuration")

// Config holds the optimizer parameters.
type Config struct {
	PopulationSize int     `json:"population_size"`
	Crossover      float64 `json:"crossover"`
	Mutation       float64 `json:"mutation"`
	Generations    int     `json:"generations"`
	Beta           float64 `json:"beta"`
	Simulate       bool    `json:"simulate"`
	Trials         int     `json:"trials"`
	Seed           int64   `json:"seed"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		PopulationSize: 20,
		Crossover:      0.75,
		Mutation:       0.05,
		Generations:    1000,
		Beta:           0.4,
		Trials:         50,
	}
}

// SetDefaults fills zero values with DefaultConfig.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.PopulationSize == 0 {
		c.PopulationSize = d.PopulationSize
	}
	if c.Crossover == 0 {
		c.Crossover = d.Crossover
	}
	if c.Mutation == 0 {
		c.Mutation = d.Mutation
	}
	if c.Generations == 0 {
		c.Generations = d.Generations
	}
	if c.Beta == 0 {
		c.Beta = d.Beta
	}
	if c.Trials == 0 {
		c.Trials = d.Trials
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return fmt.Errorf("%w: population_size must be >= 2", ErrInvalidConfig)
	case c.Crossover < 0 || c.Crossover > 1:
		return fmt.Errorf("%w: crossover must be in [0,1]", ErrInvalidConfig)
	case c.Mutation < 0 || c.Mutation > 1:
		return fmt.Errorf("%w: mutation must be in [0,1]", ErrInvalidConfig)
	case c.Generations < 0:
		return fmt.Errorf("%w: generations must be >= 0", ErrInvalidConfig)
	case c.Beta < 0 || c.Beta > 1:
		return fmt.Errorf("%w: beta must be in [0,1]", ErrInvalidConfig)
	case c.Simulate && c.Trials < 1:
		return fmt.Errorf("%w: trials must be >= 1 when simulating", ErrInvalidConfig)
	}
	return nil
}

// GenerationStats summarises an evaluated population.
type GenerationStats struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"best"`
	Mean       float64 `json:"mean"`
	Feasible   int     `json:"feasible"`
}

// Result is the outcome of a run.
type Result struct {
	Best Genome
	// Cost is the score used during the search.
	Cost              float64
	DeterministicCost float64
	StochasticCost    float64
	History           []GenerationStats
}

// Optimizer evolves genomes for a cost model.
type Optimizer struct {
	cfg   Config
	model *model.CostModel

	// OnGeneration, when set, receives the statistics of every generation.
	OnGeneration func(events.Generation)

	// observe sees every population before it is ranked.
	observe func(gen int, pop []Genome)
}

// New validates cfg and returns an optimizer for m.
func New(m *model.CostModel, cfg Config) (*Optimizer, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: cost model missing", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{cfg: cfg, model: m}, nil
}

// Config returns the optimizer parameters.
func (o *Optimizer) Config() Config { return o.cfg }

// Run evolves a random population for the configured number of generations
// and returns the best individual of the last one.
func (o *Optimizer) Run(rng *rand.Rand) Result {
	eval := NewEvaluator(o.model, rng)
	eval.Simulate, eval.Trials = o.cfg.Simulate, o.cfg.Trials
	cursors := newMutationCursors(o.eligibleLists())

	pop := o.initialPopulation(rng)
	history := make([]GenerationStats, 0, o.cfg.Generations)
	for gen := 0; gen < o.cfg.Generations; gen++ {
		o.inspect(gen, pop)
		ranked, costs := rank(pop, eval)
		stats := summarise(gen, costs)
		history = append(history, stats)
		o.notify(stats, len(pop))
		pop = o.breed(ranked, cursors, rng)
	}

	o.inspect(o.cfg.Generations, pop)
	ranked, costs := rank(pop, eval)
	best := ranked[0]
	res := Result{
		Best:              best.Clone(),
		Cost:              costs[0],
		DeterministicCost: Infeasible,
		StochasticCost:    Infeasible,
		History:           history,
	}
	if b := ToBinary(best, o.model.Fleets()); eval.Feasible(b) {
		res.DeterministicCost = eval.Cost(b)
		res.StochasticCost = eval.SimulatedCost(b, o.cfg.Trials, rng)
	}
	return res
}

func (o *Optimizer) inspect(gen int, pop []Genome) {
	if o.observe != nil {
		o.observe(gen, pop)
	}
}

func (o *Optimizer) eligibleLists() [][]int {
	out := make([][]int, o.model.Postcodes())
	for p := range out {
		out[p] = o.model.Eligible(p)
	}
	return out
}

func (o *Optimizer) initialPopulation(rng *rand.Rand) []Genome {
	pop := make([]Genome, o.cfg.PopulationSize)
	for i := range pop {
		g := make(Genome, o.model.Postcodes())
		for p := range g {
			elig := o.model.Eligible(p)
			g[p] = elig[rng.Intn(len(elig))]
		}
		pop[i] = g
	}
	return pop
}

// rank returns pop sorted by increasing cost, with the sorted costs.
func rank(pop []Genome, eval *Evaluator) ([]Genome, []float64) {
	costs := make([]float64, len(pop))
	idx := make([]int, len(pop))
	for i, g := range pop {
		costs[i] = eval.Evaluate(g)
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return costs[idx[a]] < costs[idx[b]] })
	ranked := make([]Genome, len(pop))
	sorted := make([]float64, len(pop))
	for i, j := range idx {
		ranked[i], sorted[i] = pop[j], costs[j]
	}
	return ranked, sorted
}

func summarise(gen int, sorted []float64) GenerationStats {
	st := GenerationStats{Generation: gen, Best: sorted[0], Mean: Infeasible}
	feasible := make([]float64, 0, len(sorted))
	for _, c := range sorted {
		if !math.IsInf(c, 1) {
			feasible = append(feasible, c)
		}
	}
	st.Feasible = len(feasible)
	if len(feasible) > 0 {
		st.Mean = stat.Mean(feasible, nil)
	}
	return st
}

// breed pairs the ranked population through the biased sampler and
// replaces it with the mutated offspring. An odd individual left without a
// partner moves on unchanged.
func (o *Optimizer) breed(ranked []Genome, cursors *mutationCursors, rng *rand.Rand) []Genome {
	n := o.model.Postcodes()
	selector := assign.NewSampler(ranked, o.cfg.Beta, rng)
	next := make([]Genome, 0, len(ranked))
	mask := make([]float64, n)
	for k := 0; k < len(ranked)/2; k++ {
		father, _ := selector.Next()
		mother, _ := selector.Next()
		for i := range mask {
			mask[i] = rng.Float64()
		}
		son, daughter := crossover(father, mother, mask, o.cfg.Crossover)
		for j := 0; j < n; j++ {
			if rng.Float64() < o.cfg.Mutation {
				son[j] = cursors.next(j)
			}
			if rng.Float64() < o.cfg.Mutation {
				daughter[j] = cursors.next(j)
			}
		}
		next = append(next, son, daughter)
	}
	if left, ok := selector.Next(); ok {
		next = append(next, left.Clone())
	}
	return next
}

// crossover builds two complementary children: where mask[i] >= co the son
// takes the mother's gene, where mask[i] < co the daughter does.
func crossover(father, mother Genome, mask []float64, co float64) (son, daughter Genome) {
	son = make(Genome, len(father))
	daughter = make(Genome, len(father))
	for i := range father {
		if mask[i] >= co {
			son[i], daughter[i] = mother[i], father[i]
		} else {
			son[i], daughter[i] = father[i], mother[i]
		}
	}
	return son, daughter
}

func (o *Optimizer) notify(s GenerationStats, size int) {
	if o.OnGeneration == nil {
		return
	}
	o.OnGeneration(events.Generation{
		Generation: s.Generation,
		BestCost:   s.Best,
		MeanCost:   s.Mean,
		Feasible:   s.Feasible,
		Population: size,
		Time:       time.Now(),
	})
}
