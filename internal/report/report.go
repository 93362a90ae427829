// Package report turns a finished run into the figures shown to operators:
// lives saved, a per-tick history and the per-zone status table.
package report

import (
	"math"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/world"
)

// ZoneReport is one row of the zone status table.
type ZoneReport struct {
	ZoneID              string `json:"zone_id" db:"zone_id"`
	RemainingPopulation int64  `json:"remaining_population" db:"remaining_population"`
	Ambulances          int    `json:"ambulances" db:"ambulances"`
	Shelters            int    `json:"shelters" db:"shelters"`
}

// Report is everything a completed run exposes.
type Report struct {
	Policy     string             `json:"policy"`
	Ticks      int                `json:"ticks"`
	TotalSaved int64              `json:"total_saved"`
	Zones      []ZoneReport       `json:"zones"`
	History    []engine.TickDelta `json:"history"`
}

// Summarize builds the zone table in input order. Populations are truncated.
func Summarize(final []world.Pair) []ZoneReport {
	rows := make([]ZoneReport, 0, len(final))
	for _, p := range final {
		rows = append(rows, ZoneReport{
			ZoneID:              string(p.Zone.Zone),
			RemainingPopulation: int64(math.Trunc(p.Zone.Population)),
			Ambulances:          p.Hub.A,
			Shelters:            p.Hub.S,
		})
	}
	return rows
}

// TotalSaved truncates the engine's accumulator. It is the only place the
// integer figure is derived.
func TotalSaved(res *engine.Result) int64 {
	return int64(math.Trunc(res.TotalSaved))
}

// Aggregator records per-tick deltas. Attach Observe to Engine.OnTick.
type Aggregator struct {
	history []engine.TickDelta
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Observe records one tick.
func (a *Aggregator) Observe(d engine.TickDelta) {
	a.history = append(a.history, d)
}

// History returns the recorded ticks.
func (a *Aggregator) History() []engine.TickDelta {
	return a.history
}

// Finish combines the observed history with the final state.
func (a *Aggregator) Finish(res *engine.Result) *Report {
	return &Report{
		Policy:     res.Policy,
		Ticks:      res.Ticks,
		TotalSaved: TotalSaved(res),
		Zones:      Summarize(res.Final),
		History:    a.history,
	}
}
