package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetassign/core/assign"
	"github.com/kilianp07/fleetassign/core/genetic"
	"github.com/kilianp07/fleetassign/core/metrics"
	"github.com/kilianp07/fleetassign/core/runlog"
	"github.com/kilianp07/fleetassign/infra/mqtt"
)

// EnvPrefix marks environment variables that override file settings.
// Nested keys are separated by a double underscore, e.g.
// K_SOLVER__MODE=volume.
const EnvPrefix = "K_"

type Config struct {
	LogLevel string         `json:"log_level"`
	Solver   SolverConfig   `json:"solver"`
	Genetic  genetic.Config `json:"genetic"`
	RunLog   runlog.Config  `json:"run_log"`
	Metrics  metrics.Config `json:"metrics"`
	MQTT     mqtt.Config    `json:"mqtt"`
	Sentry   SentryConfig   `json:"sentry"`
	API      APIConfig      `json:"api"`
}

// APIConfig protects the HTTP run log API.
type APIConfig struct {
	// Token, when set, is required as a bearer token.
	Token string `json:"token"`
}

// Default returns a configuration with every section defaulted.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Solver.SetDefaults()
	c.Genetic.SetDefaults()
	c.RunLog.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Genetic.Validate(); err != nil {
		return fmt.Errorf("genetic: %w", err)
	}
	if err := c.RunLog.Validate(); err != nil {
		return fmt.Errorf("run_log: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// Load reads the configuration file at path over Default(), applies K_
// environment overrides and validates the result. Keys present in the file
// or the environment win, including explicit zeros. Weights are replaced as
// a whole when any of them is set. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if k.Exists("solver.weights") {
		cfg.Solver.Weights = assign.Weights{}
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if !k.Exists("run_log.path") {
		// the default path follows the chosen backend
		cfg.RunLog.Path = ""
		cfg.RunLog.SetDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
