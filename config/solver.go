package config

import (
	"github.com/kilianp07/fleetassign/core/assign"
)

// MultiStartConfig mirrors assign.MultiStart in configuration files.
type MultiStartConfig struct {
	Iterations   int     `json:"iterations"`
	BaselineBeta float64 `json:"baseline_beta"`
	MinBeta      float64 `json:"min_beta"`
	MaxBeta      float64 `json:"max_beta"`
}

// SolverConfig drives the constructive multi-start search.
type SolverConfig struct {
	// Mode is "capacity" or "volume".
	Mode    string           `json:"mode"`
	Seed    int64            `json:"seed"`
	Weights assign.Weights   `json:"weights"`
	Search  MultiStartConfig `json:"multistart"`
	// MinVolumeFirst serves every fleet's minimum volume before the
	// greedy pass in volume mode.
	MinVolumeFirst bool `json:"min_volume_first"`
}

// SetDefaults applies the standard weights and search settings. Weights
// that are all zero are replaced as a whole.
func (c *SolverConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = assign.CapacityConstrained.String()
	}
	if c.Weights == (assign.Weights{}) {
		c.Weights = assign.DefaultWeights()
	}
	def := assign.DefaultMultiStart()
	if c.Search.Iterations == 0 {
		c.Search.Iterations = def.Iterations
	}
	if c.Search.BaselineBeta == 0 {
		c.Search.BaselineBeta = def.BaselineBeta
	}
	if c.Search.MinBeta == 0 && c.Search.MaxBeta == 0 {
		c.Search.MinBeta, c.Search.MaxBeta = def.MinBeta, def.MaxBeta
	}
}

// Validate checks the mode and the search bounds.
func (c SolverConfig) Validate() error {
	_, err := c.MultiStart()
	return err
}

// MultiStart converts the configuration into search settings.
func (c SolverConfig) MultiStart() (assign.MultiStart, error) {
	mode, err := assign.ParseMode(c.Mode)
	if err != nil {
		return assign.MultiStart{}, err
	}
	ms := assign.MultiStart{
		Iterations:   c.Search.Iterations,
		BaselineBeta: c.Search.BaselineBeta,
		MinBeta:      c.Search.MinBeta,
		MaxBeta:      c.Search.MaxBeta,
		Mode:         mode,
	}
	return ms, ms.Validate()
}
