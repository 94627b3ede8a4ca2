// Package assign implements the constructive side of fleet assignment: edge
// valuation, biased-randomised sampling, the capacity and volume constrained
// greedy heuristics and the multi-start search that drives them.
//
// A Constructor is read-only once built. Every run allocates its own
// scratch state, so repeated or concurrent runs never share bookkeeping as
// long as each goroutine uses its own *rand.Rand.
package assign
