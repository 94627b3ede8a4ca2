// Package metrics defines the sinks that observe optimisation runs. Every
// sink records completed runs; optional recorder interfaces cover search
// progress and per-fleet loads. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
