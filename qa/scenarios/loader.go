// Package scenarios replays YAML assignment scenarios through the service
// and checks their outcome.
package scenarios

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetassign/core/model"
)

type SolveExpected struct {
	Feasible bool `yaml:"feasible"`
	Unserved int  `yaml:"unserved"`
	// Assigned maps fleet ids to the quantity they must receive.
	Assigned map[int]float64 `yaml:"assigned,omitempty"`
}

type EvolveExpected struct {
	Feasible bool `yaml:"feasible"`
	// Cost is only checked for feasible runs.
	Cost float64 `yaml:"cost,omitempty"`
}

type Expected struct {
	Solve  *SolveExpected  `yaml:"solve,omitempty"`
	Evolve *EvolveExpected `yaml:"evolve,omitempty"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Mode        string         `yaml:"mode"`
	Seed        int64          `yaml:"seed"`
	Iterations  int            `yaml:"iterations"`
	Generations int            `yaml:"generations"`
	Problem     model.Document `yaml:"problem"`
	Expected    Expected       `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
