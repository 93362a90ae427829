// Package engine provides the tick-based allocation loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/reliefsim/internal/policy"
)

// Rates are per-unit throughput constants: people served per tick by one
// ambulance, one transport unit, one shelter unit.
type Rates struct {
	Ambulance float64 `yaml:"ambulance" json:"ambulance"`
	Transport float64 `yaml:"transport" json:"transport"`
	Shelter   float64 `yaml:"shelter" json:"shelter"`
}

// Rate presets observed in deployments.
var (
	RatesPrimary   = Rates{Ambulance: 50, Transport: 60, Shelter: 20}
	RatesAlternate = Rates{Ambulance: 40, Transport: 60, Shelter: 25}
)

// Requery controls how often a zone's policy is consulted.
type Requery uint8

const (
	// RequeryPerTick asks the policy every tick, so it can react to population.
	RequeryPerTick Requery = iota
	// RequeryOnce asks once per zone per run and reuses the fraction.
	RequeryOnce
)

// String returns the configuration name.
func (r Requery) String() string {
	if r == RequeryOnce {
		return "once"
	}
	return "per_tick"
}

// ParseRequery maps a configuration name to a Requery mode.
func ParseRequery(s string) (Requery, error) {
	switch s {
	case "", "per_tick":
		return RequeryPerTick, nil
	case "once":
		return RequeryOnce, nil
	}
	return 0, fmt.Errorf("unknown requery mode %q", s)
}

// Config fixes the shape of a run. It is not adapted during a run.
type Config struct {
	Ticks   int
	Rates   Rates
	Requery Requery
}

// DefaultConfig returns 20 ticks at the primary rates.
func DefaultConfig() Config {
	return Config{Ticks: 20, Rates: RatesPrimary, Requery: RequeryPerTick}
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c Config) Validate() error {
	if c.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive, got %d", c.Ticks)
	}
	for _, r := range []float64{c.Rates.Ambulance, c.Rates.Transport, c.Rates.Shelter} {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return fmt.Errorf("rates must be finite and non-negative, got %+v", c.Rates)
		}
	}
	return nil
}

// TickDelta summarizes what one tick changed.
type TickDelta struct {
	Tick        int     `json:"tick"`
	Saved       float64 `json:"saved"`
	TotalSaved  float64 `json:"total_saved"`
	ActiveZones int     `json:"active_zones"` // Zones with population left after the tick
	Remaining   float64 `json:"remaining"`
}

// Engine drives a simulation through a fixed number of ticks.
type Engine struct {
	Config

	// OnTick observes each completed tick. Optional.
	OnTick func(TickDelta)
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{Config: cfg}, nil
}

// Ceiling is the most people a hub can move in one tick, bounded by its
// scarcest resource.
func (r Rates) Ceiling(a, t, s int) float64 {
	return math.Min(float64(a)*r.Ambulance, math.Min(float64(t)*r.Transport, float64(s)*r.Shelter))
}

// Run executes exactly e.Ticks rounds against sim. A policy failure aborts
// the run; no partial result is returned.
func (e *Engine) Run(ctx context.Context, sim *Simulation, p policy.Policy) (*Result, error) {
	if sim.Tick != 0 {
		return nil, fmt.Errorf("simulation already ran %d ticks", sim.Tick)
	}
	slog.Debug("simulation run starting",
		"policy", p.Name(),
		"ticks", e.Ticks,
		"zones", len(sim.Pairs),
		"population", sim.Remaining(),
	)

	var fixed []float64
	if e.Requery == RequeryOnce {
		fixed = make([]float64, len(sim.Pairs))
		for i := range fixed {
			fixed[i] = -1
		}
	}

	for tick := 1; tick <= e.Ticks; tick++ {
		saved := 0.0
		for i := range sim.Pairs {
			pair := &sim.Pairs[i]
			if !pair.Zone.Active() {
				continue
			}

			var frac float64
			if fixed != nil && fixed[i] >= 0 {
				frac = fixed[i]
			} else {
				f, err := p.Decide(ctx, pair.Zone, pair.Hub)
				if err != nil {
					return nil, &SimulationError{Reason: ReasonOf(err), Tick: tick, Zone: string(pair.Zone.Zone), Err: err}
				}
				if math.IsNaN(f) || f < 0 || f > 1 {
					err := fmt.Errorf("%w: fraction %v outside [0,1]", policy.ErrPolicyUnavailable, f)
					return nil, &SimulationError{Reason: ReasonPolicyUnavailable, Tick: tick, Zone: string(pair.Zone.Zone), Err: err}
				}
				frac = f
				if fixed != nil {
					fixed[i] = f
				}
			}

			ceiling := e.Rates.Ceiling(pair.Hub.A, pair.Hub.T, pair.Hub.S)
			batch := math.Floor(math.Min(pair.Zone.Population, ceiling*frac))
			if !(batch > 0) {
				continue
			}
			pair.Zone.Population -= batch
			saved += batch
			if pair.Zone.Population == 0 {
				slog.Debug("zone cleared", "tick", tick, "pair", pair.String())
			}
		}

		sim.advance(saved)
		delta := TickDelta{
			Tick:        tick,
			Saved:       saved,
			TotalSaved:  sim.TotalSaved,
			ActiveZones: sim.ActiveZones(),
			Remaining:   sim.Remaining(),
		}
		slog.Debug("tick", "tick", tick, "saved", saved, "total_saved", sim.TotalSaved, "active", delta.ActiveZones)
		if e.OnTick != nil {
			e.OnTick(delta)
		}
	}

	return &Result{
		Policy:     p.Name(),
		Ticks:      sim.Tick,
		TotalSaved: sim.TotalSaved,
		Final:      sim.Pairs,
	}, nil
}
