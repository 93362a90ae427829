// Package config loads reliefsim settings from a YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/policy"
)

type Config struct {
	Dataset  string `yaml:"dataset"`   // Baseline JSON (or .json.zst) path
	DB       string `yaml:"db"`        // SQLite path for run history
	Port     int    `yaml:"port"`      // HTTP API port
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Simulation requests per client per minute on the HTTP API.
	SimulatePerMinute int `yaml:"simulate_per_minute"`

	Simulation Simulation `yaml:"simulation"`
	Policy     Policy     `yaml:"policy"`
}

type Simulation struct {
	Ticks       int           `yaml:"ticks"`
	RatesPreset string        `yaml:"rates_preset"` // primary | alternate; ignored when Rates is set
	Rates       *engine.Rates `yaml:"rates"`
	Requery     string        `yaml:"requery"` // per_tick | once
}

type Policy struct {
	Default string  `yaml:"default"` // heuristic | learned
	Learned Learned `yaml:"learned"`
}

type Learned struct {
	URL            string `yaml:"url"`
	Features       string `yaml:"features"` // raw6 | normalized8
	Output         string `yaml:"output"`   // discrete | continuous
	InputDim       int    `yaml:"input_dim"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxPerMinute   int    `yaml:"max_per_minute"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Dataset:  "data/world.json",
		DB:       "data/reliefsim.db",
		Port:     8080,
		LogLevel: "info",

		SimulatePerMinute: 60,
		Simulation: Simulation{
			Ticks:       20,
			RatesPreset: "primary",
			Requery:     "per_tick",
		},
		Policy: Policy{
			Default: "heuristic",
			Learned: Learned{
				Features:       "normalized8",
				Output:         "discrete",
				TimeoutSeconds: 30,
			},
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every enumerated field and numeric bound.
func (c Config) Validate() error {
	if _, err := c.Engine(); err != nil {
		return err
	}
	switch c.Policy.Default {
	case "heuristic", "learned":
	default:
		return fmt.Errorf("policy.default must be heuristic or learned, got %q", c.Policy.Default)
	}
	if _, err := policy.ParseFeatureConvention(c.Policy.Learned.Features); err != nil {
		return fmt.Errorf("policy.learned.features: %w", err)
	}
	if _, err := policy.ParseOutputMode(c.Policy.Learned.Output); err != nil {
		return fmt.Errorf("policy.learned.output: %w", err)
	}
	if c.SimulatePerMinute < 0 {
		return fmt.Errorf("simulate_per_minute must be non-negative, got %d", c.SimulatePerMinute)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Engine builds the engine configuration.
func (c Config) Engine() (engine.Config, error) {
	ec := engine.Config{Ticks: c.Simulation.Ticks}
	switch {
	case c.Simulation.Rates != nil:
		ec.Rates = *c.Simulation.Rates
	case c.Simulation.RatesPreset == "" || c.Simulation.RatesPreset == "primary":
		ec.Rates = engine.RatesPrimary
	case c.Simulation.RatesPreset == "alternate":
		ec.Rates = engine.RatesAlternate
	default:
		return ec, fmt.Errorf("unknown rates_preset %q", c.Simulation.RatesPreset)
	}
	rq, err := engine.ParseRequery(c.Simulation.Requery)
	if err != nil {
		return ec, err
	}
	ec.Requery = rq
	return ec, ec.Validate()
}

// PredictorConfig builds the HTTP predictor settings. InputDim defaults to
// the configured convention's length.
func (c Config) PredictorConfig() policy.HTTPPredictorConfig {
	dim := c.Policy.Learned.InputDim
	if dim == 0 {
		if conv, err := policy.ParseFeatureConvention(c.Policy.Learned.Features); err == nil {
			dim = conv.Dim()
		}
	}
	return policy.HTTPPredictorConfig{
		URL:       c.Policy.Learned.URL,
		InputDim:  dim,
		Timeout:   time.Duration(c.Policy.Learned.TimeoutSeconds) * time.Second,
		MaxPerMin: c.Policy.Learned.MaxPerMinute,
	}
}

// ApplyEnv overlays RELIEFSIM_PORT, RELIEFSIM_DATASET, RELIEFSIM_DB and
// RELIEFSIM_PREDICTOR_URL when set.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("RELIEFSIM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELIEFSIM_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("RELIEFSIM_DATASET"); v != "" {
		c.Dataset = v
	}
	if v := os.Getenv("RELIEFSIM_DB"); v != "" {
		c.DB = v
	}
	if v := os.Getenv("RELIEFSIM_PREDICTOR_URL"); v != "" {
		c.Policy.Learned.URL = v
	}
	return c.Validate()
}

// LearnedPolicy builds the learned policy from the predictor settings.
// It returns nil without error when no predictor URL is configured.
func (c Config) LearnedPolicy() (*policy.Learned, error) {
	if c.Policy.Learned.URL == "" {
		return nil, nil
	}
	conv, err := policy.ParseFeatureConvention(c.Policy.Learned.Features)
	if err != nil {
		return nil, err
	}
	out, err := policy.ParseOutputMode(c.Policy.Learned.Output)
	if err != nil {
		return nil, err
	}
	return policy.NewLearned(policy.NewHTTPPredictor(c.PredictorConfig()), conv, out)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
