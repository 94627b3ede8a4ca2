// Package runlog persists a record of every optimisation run so that past
// runs can be listed and compared.
package runlog

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Load is the quantity a run gave to one fleet.
type Load struct {
	FleetID   int     `json:"fleet_id"`
	Customers int     `json:"customers"`
	Assigned  float64 `json:"assigned"`
}

// Record describes a finished run. Objective is the total value for
// multistart runs and the cost for genetic runs; infeasible runs store 0
// with Feasible false.
type Record struct {
	RunID      string         `json:"run_id"`
	Strategy   string         `json:"strategy"`
	Mode       string         `json:"mode,omitempty"`
	Problem    string         `json:"problem,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Duration   time.Duration  `json:"duration"`
	Objective  float64        `json:"objective"`
	Feasible   bool           `json:"feasible"`
	Iterations int            `json:"iterations"`
	Params     map[string]any `json:"params,omitempty"`
	Loads      []Load         `json:"loads,omitempty"`
	Solution   []int          `json:"solution,omitempty"`
}

// Query filters records. Zero fields do not filter. Limit keeps the most
// recent records.
type Query struct {
	Start    time.Time
	End      time.Time
	Strategy string
	RunID    string
	Limit    int
}

// Match reports whether r satisfies the time, strategy and run filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Strategy != "" && r.Strategy != q.Strategy {
		return false
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	return true
}

// finish orders records by time and applies the limit.
func (q Query) finish(recs []Record) []Record {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists run records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

// Config selects and configures the run log backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "runs.db"
		default:
			c.Path = "runs.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "none":
		return nil
	}
	return fmt.Errorf("run_log.backend must be jsonl, sqlite or none, got %q", c.Backend)
}

// Open returns the store selected by cfg.
func Open(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "none":
		return NopStore{}, nil
	}
	return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
}
