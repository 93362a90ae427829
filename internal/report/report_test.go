package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/policy"
	"github.com/talgya/reliefsim/internal/world"
)

func TestSummarize_KeepsInputOrderAndTruncates(t *testing.T) {
	final := []world.Pair{
		{Zone: world.DisasterZone{Zone: "Z9", Population: 12.9, Severity: 1}, Hub: world.ReliefHub{A: 3, T: 4, S: 5}},
		{Zone: world.DisasterZone{Zone: "Z1", Population: 0, Severity: 5}, Hub: world.ReliefHub{A: 1, T: 1, S: 1}},
		{Zone: world.DisasterZone{Zone: "Z5", Population: 700.2, Severity: 3}, Hub: world.ReliefHub{A: 9, T: 9, S: 2}},
	}
	rows := Summarize(final)
	assert.Equal(t, []ZoneReport{
		{ZoneID: "Z9", RemainingPopulation: 12, Ambulances: 3, Shelters: 5},
		{ZoneID: "Z1", RemainingPopulation: 0, Ambulances: 1, Shelters: 1},
		{ZoneID: "Z5", RemainingPopulation: 700, Ambulances: 9, Shelters: 2},
	}, rows)
}

func TestAggregator_ObservesEngine(t *testing.T) {
	b, err := world.NewBaseline([]world.Pair{
		{Zone: world.DisasterZone{Zone: "Z1", Population: 1000}, Hub: world.ReliefHub{Hub: "H1", A: 10, T: 10, S: 10}},
		{Zone: world.DisasterZone{Zone: "Z2", Population: 333.7}, Hub: world.ReliefHub{Hub: "H2", A: 1, T: 1, S: 1}},
	})
	require.NoError(t, err)

	wc := b.Clone()
	require.NoError(t, world.ApplyResourceBoost(wc, 2, 3))

	eng, err := engine.NewEngine(engine.DefaultConfig())
	require.NoError(t, err)
	agg := NewAggregator()
	eng.OnTick = agg.Observe

	res, err := eng.Run(context.Background(), engine.NewSimulation(wc), policy.Heuristic{})
	require.NoError(t, err)
	rep := agg.Finish(res)

	require.Len(t, rep.History, 20)
	assert.Equal(t, res.TotalSaved, rep.History[19].TotalSaved)
	assert.Equal(t, TotalSaved(res), rep.TotalSaved)
	assert.Equal(t, "heuristic", rep.Policy)

	// Z2: ceiling min(3*50, 1*60, 4*20) = 60/tick; 333.7 -> 33.7 after 5 ticks,
	// floor(33.7) = 33 on tick 6 leaves 0.7 forever.
	require.Len(t, rep.Zones, 2)
	assert.Equal(t, "Z1", rep.Zones[0].ZoneID)
	assert.Equal(t, int64(0), rep.Zones[0].RemainingPopulation)
	assert.Equal(t, 12, rep.Zones[0].Ambulances)
	assert.Equal(t, 13, rep.Zones[0].Shelters)
	assert.Equal(t, int64(0), rep.Zones[1].RemainingPopulation)
	assert.Equal(t, int64(1333), rep.TotalSaved)

	sum := 0.0
	for _, d := range rep.History {
		sum += d.Saved
	}
	assert.Equal(t, res.TotalSaved, sum)
}
