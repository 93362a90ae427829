package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/report"
	"github.com/talgya/reliefsim/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "reliefsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBaseline_RoundTripPreservesOrder(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasBaseline())

	b, err := world.Generate(world.SmallTestConfig())
	require.NoError(t, err)
	require.NoError(t, db.SaveBaseline(b))
	assert.True(t, db.HasBaseline())

	got, err := db.LoadBaseline()
	require.NoError(t, err)
	assert.Equal(t, b.Pairs(), got.Pairs())

	imported, err := db.GetMeta("baseline_imported_at")
	require.NoError(t, err)
	assert.NotEmpty(t, imported)
}

func TestBaseline_ReplaceOnSave(t *testing.T) {
	db := openTestDB(t)

	big, err := world.Generate(world.DefaultGenConfig())
	require.NoError(t, err)
	require.NoError(t, db.SaveBaseline(big))

	small, err := world.Generate(world.SmallTestConfig())
	require.NoError(t, err)
	require.NoError(t, db.SaveBaseline(small))

	got, err := db.LoadBaseline()
	require.NoError(t, err)
	assert.Equal(t, small.Len(), got.Len())
}

func TestLoadBaseline_EmptyIsDataError(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadBaseline()
	assert.ErrorIs(t, err, world.ErrData)
}

func TestRuns_CompletedAndFailed(t *testing.T) {
	db := openTestDB(t)
	cfg := engine.DefaultConfig()

	ok := NewRunRecord("heuristic", cfg, 5, 10)
	rep := &report.Report{
		Policy:     "heuristic",
		Ticks:      20,
		TotalSaved: 1000,
		Zones:      []report.ZoneReport{{ZoneID: "Z1", RemainingPopulation: 0, Ambulances: 15, Shelters: 20}},
		History: []engine.TickDelta{
			{Tick: 1, Saved: 600, TotalSaved: 600, ActiveZones: 1, Remaining: 400},
			{Tick: 2, Saved: 400, TotalSaved: 1000, ActiveZones: 0, Remaining: 0},
		},
	}
	require.NoError(t, db.SaveRun(ok, rep))

	failed := NewRunRecord("learned", cfg, 0, 0)
	failed.CreatedAt = ok.CreatedAt.Add(time.Second)
	failed.Reason = string(engine.ReasonPolicyUnavailable)
	require.NoError(t, db.SaveRun(failed, nil))

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failed.ID, runs[0].ID, "newest first")
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "policy_unavailable", runs[0].Reason)
	assert.Equal(t, StatusCompleted, runs[1].Status)
	assert.Equal(t, int64(1000), runs[1].TotalSaved)
	assert.Equal(t, 5, runs[1].ExtraAmbulances)
	assert.Equal(t, 50.0, runs[1].RateAmbulance)

	detail, err := db.GetRun(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.Zones, detail.Zones)
	assert.Equal(t, rep.History, detail.History)
	assert.WithinDuration(t, ok.CreatedAt, detail.CreatedAt, time.Microsecond)

	fdetail, err := db.GetRun(failed.ID)
	require.NoError(t, err)
	assert.Empty(t, fdetail.Zones)
	assert.Empty(t, fdetail.History)
	assert.Equal(t, int64(0), fdetail.TotalSaved)
}

func TestGetRun_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
