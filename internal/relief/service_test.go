package relief

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/persistence"
	"github.com/talgya/reliefsim/internal/policy"
	"github.com/talgya/reliefsim/internal/world"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	b, err := world.NewBaseline([]world.Pair{
		{Zone: world.DisasterZone{Zone: "Z1", Population: 1000, Severity: 2}, Hub: world.ReliefHub{Hub: "H1", A: 10, T: 10, S: 10}},
		{Zone: world.DisasterZone{Zone: "Z2", Population: 5000, Severity: 4}, Hub: world.ReliefHub{Hub: "H2", A: 2, T: 8, S: 3}},
	})
	require.NoError(t, err)
	svc, err := NewService(b, engine.DefaultConfig())
	require.NoError(t, err)

	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc.DB = db
	return svc
}

func TestSimulate_HeuristicScenario(t *testing.T) {
	svc := newTestService(t)

	out, err := svc.Simulate(context.Background(), Request{})
	require.NoError(t, err)
	require.NotEmpty(t, out.RunID)

	// Z1 drains in 5 ticks; Z2 ceiling min(100, 480, 60) = 60/tick -> 1200.
	assert.Equal(t, int64(2200), out.TotalSaved)
	assert.Equal(t, int64(0), out.Zones[0].RemainingPopulation)
	assert.Equal(t, int64(3800), out.Zones[1].RemainingPopulation)

	detail, err := svc.DB.GetRun(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusCompleted, detail.Status)
	assert.Equal(t, out.Zones, detail.Zones)
}

func TestSimulate_BoostRaisesScarcestResource(t *testing.T) {
	svc := newTestService(t)

	out, err := svc.Simulate(context.Background(), Request{ExtraAmbulances: 10, ExtraShelters: 10})
	require.NoError(t, err)
	// Z2: A=12, T=8, S=13 -> min(600, 480, 260) = 260/tick -> 5000 in 20 ticks.
	assert.Equal(t, int64(6000), out.TotalSaved)
	assert.Equal(t, 12, out.Zones[1].Ambulances)
	assert.Equal(t, 13, out.Zones[1].Shelters)

	// Baseline is untouched by the boost.
	assert.Equal(t, 2, svc.Baseline().Pairs()[1].Hub.A)
}

func TestSimulate_RepeatRunsAreIndependent(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Simulate(context.Background(), Request{ExtraAmbulances: 3})
	require.NoError(t, err)
	b, err := svc.Simulate(context.Background(), Request{ExtraAmbulances: 3})
	require.NoError(t, err)

	assert.Equal(t, a.TotalSaved, b.TotalSaved)
	assert.Equal(t, a.Zones, b.Zones)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestSimulate_LearnedNotConfigured(t *testing.T) {
	svc := newTestService(t)
	out, err := svc.Simulate(context.Background(), Request{Policy: PolicyLearned})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, policy.ErrPolicyUnavailable)
	assert.Equal(t, engine.ReasonPolicyUnavailable, engine.ReasonOf(err))

	runs, err := svc.DB.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, persistence.StatusFailed, runs[0].Status)
	assert.Equal(t, "policy_unavailable", runs[0].Reason)
}

func TestSimulate_LearnedFailureStoresNoPartialResult(t *testing.T) {
	svc := newTestService(t)
	calls := 0
	pred := policy.PredictorFunc{Dim: 8, Fn: func(context.Context, []float64) (float64, error) {
		calls++
		if calls > 5 {
			return 0, errors.New("timeout")
		}
		return 2, nil
	}}
	l, err := policy.NewLearned(pred, policy.FeaturesNormalized, policy.OutputDiscrete)
	require.NoError(t, err)
	svc.Learned = l

	out, err := svc.Simulate(context.Background(), Request{Policy: PolicyLearned})
	assert.Nil(t, out)
	require.Error(t, err)

	runs, err := svc.DB.RecentRuns(1)
	require.NoError(t, err)
	detail, err := svc.DB.GetRun(runs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Zones)
	assert.Empty(t, detail.History)
}

func TestSimulate_LearnedPolicy(t *testing.T) {
	svc := newTestService(t)
	pred := policy.PredictorFunc{Dim: 6, Fn: func(_ context.Context, f []float64) (float64, error) {
		// Full effort for high-risk zones, medium otherwise.
		if f[0] > 0.5 {
			return 3, nil
		}
		return 2, nil
	}}
	l, err := policy.NewLearned(pred, policy.FeaturesRaw, policy.OutputDiscrete)
	require.NoError(t, err)
	svc.Learned = l

	out, err := svc.Simulate(context.Background(), Request{Policy: PolicyLearned})
	require.NoError(t, err)
	// Risk is 0 in both zones -> 0.6 of ceiling: Z1 120/tick, Z2 36/tick.
	assert.Equal(t, int64(1000+36*20), out.TotalSaved)
	assert.Equal(t, "learned", out.Policy)
}

func TestSimulate_NegativeBoost(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Simulate(context.Background(), Request{ExtraShelters: -4})
	assert.ErrorIs(t, err, world.ErrInvalidBoost)
	assert.Equal(t, engine.ReasonInvalidInput, engine.ReasonOf(err))
}

func TestSimulate_UnknownPolicyIsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Simulate(context.Background(), Request{Policy: "oracle"})
	assert.ErrorIs(t, err, policy.ErrUnknownPolicy)
	assert.Equal(t, engine.ReasonInvalidInput, engine.ReasonOf(err))

	runs, err := svc.DB.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "invalid_input", runs[0].Reason)
}

func TestSimulate_LearnedKeepsConstructionReason(t *testing.T) {
	svc := newTestService(t)
	_, buildErr := policy.NewLearned(policy.PredictorFunc{Dim: 6}, policy.FeaturesNormalized, policy.OutputDiscrete)
	require.ErrorIs(t, buildErr, policy.ErrFeatureShapeMismatch)
	svc.LearnedErr = buildErr

	_, err := svc.Simulate(context.Background(), Request{Policy: PolicyLearned})
	assert.ErrorIs(t, err, policy.ErrFeatureShapeMismatch)
	assert.Equal(t, engine.ReasonFeatureShapeMismatch, engine.ReasonOf(err))

	// Heuristic runs are unaffected.
	_, err = svc.Simulate(context.Background(), Request{Policy: PolicyHeuristic})
	assert.NoError(t, err)
}

func TestSetBaseline(t *testing.T) {
	svc := newTestService(t)
	b, err := world.Generate(world.SmallTestConfig())
	require.NoError(t, err)
	svc.SetBaseline(b)

	out, err := svc.Simulate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, out.Zones, b.Len())
}
