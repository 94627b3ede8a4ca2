// Package events defines the optimisation progress events emitted on the
// event bus.
//
// Available event types:
//   - Improvement: the multi-start search found a better assignment
//   - Generation: the genetic optimizer completed a generation
//   - RunCompleted: an optimisation run finished
package events
