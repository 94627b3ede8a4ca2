package assign

import (
	"math"
	"math/rand"
)

// Sampler yields the elements of a ranked list in a biased-randomised order.
// Position k of the remaining pool is drawn with a quasi-geometric
// probability driven by beta: values close to 1 are almost greedy, values
// close to 0 almost uniform. Each element is yielded exactly once.
type Sampler[T any] struct {
	pool    []T
	logBase float64
	beta    float64
	rng     *rand.Rand
}

// NewSampler prepares a sampler over a private copy of items, which must be
// sorted best first.
func NewSampler[T any](items []T, beta float64, rng *rand.Rand) *Sampler[T] {
	return &Sampler[T]{
		pool:    append([]T(nil), items...),
		logBase: math.Log(1 - beta),
		beta:    beta,
		rng:     rng,
	}
}

// Len returns the number of elements not drawn yet.
func (s *Sampler[T]) Len() int { return len(s.pool) }

// Next removes and returns the next element. ok is false once the pool is
// exhausted.
func (s *Sampler[T]) Next() (item T, ok bool) {
	if len(s.pool) == 0 {
		return item, false
	}
	idx := s.index(len(s.pool))
	item = s.pool[idx]
	s.pool = append(s.pool[:idx], s.pool[idx+1:]...)
	return item, true
}

func (s *Sampler[T]) index(n int) int {
	switch {
	case s.beta >= 1:
		return 0
	case s.beta <= 0 || s.logBase == 0:
		// 1-beta rounds to 1 for tiny betas
		return s.rng.Intn(n)
	}
	u := s.rng.Float64()
	for u == 0 {
		u = s.rng.Float64()
	}
	k := math.Floor(math.Log(u) / s.logBase)
	return int(math.Mod(k, float64(n)))
}

// Permute returns the full biased-randomised permutation of items.
func Permute[T any](items []T, beta float64, rng *rand.Rand) []T {
	s := NewSampler(items, beta, rng)
	out := make([]T, 0, len(items))
	for {
		item, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}
