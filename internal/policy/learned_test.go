package policy

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reliefsim/internal/world"
)

var (
	testZone = world.DisasterZone{
		Zone: "Z1", Population: 1500, Severity: 3, Urgency: 0.8,
		Risk: 0.6, Distance: 250, Accessibility: 0.4,
	}
	testHub = world.ReliefHub{Hub: "H1", A: 10, T: 20, S: 30}
)

func constPredictor(dim int, out float64) PredictorFunc {
	return PredictorFunc{Dim: dim, Fn: func(context.Context, []float64) (float64, error) {
		return out, nil
	}}
}

func TestHeuristic_AlwaysFull(t *testing.T) {
	f, err := Heuristic{}.Decide(context.Background(), testZone, testHub)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	f, err = Heuristic{}.Decide(context.Background(), world.DisasterZone{}, world.ReliefHub{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)
}

func TestFeatures_Order(t *testing.T) {
	assert.Equal(t, []float64{0.6, 0.8, 1500, 10, 20, 30}, FeaturesRaw.Features(testZone, testHub))
	assert.Equal(t, []float64{3, 0.8, 1.5, 0.1, 0.2, 0.3, 2.5, 0.4}, FeaturesNormalized.Features(testZone, testHub))
	assert.Equal(t, 6, FeaturesRaw.Dim())
	assert.Equal(t, 8, FeaturesNormalized.Dim())
}

func TestLearned_PassesConventionVector(t *testing.T) {
	var got []float64
	p := PredictorFunc{Dim: 8, Fn: func(_ context.Context, f []float64) (float64, error) {
		got = append([]float64(nil), f...)
		return 3, nil
	}}
	l, err := NewLearned(p, FeaturesNormalized, OutputDiscrete)
	require.NoError(t, err)

	frac, err := l.Decide(context.Background(), testZone, testHub)
	require.NoError(t, err)
	assert.Equal(t, 1.0, frac)
	assert.Equal(t, FeaturesNormalized.Features(testZone, testHub), got)
}

func TestLearned_DiscreteMapping(t *testing.T) {
	cases := map[float64]float64{0: 0.0, 1: 0.3, 2: 0.6, 3: 1.0, 1.2: 0.3}
	for raw, want := range cases {
		l, err := NewLearned(constPredictor(6, raw), FeaturesRaw, OutputDiscrete)
		require.NoError(t, err)
		got, err := l.Decide(context.Background(), testZone, testHub)
		require.NoError(t, err)
		assert.Equal(t, want, got, "class %v", raw)
	}
}

func TestLearned_DiscreteUnknownClass(t *testing.T) {
	for _, raw := range []float64{-1, 4, math.NaN()} {
		l, err := NewLearned(constPredictor(6, raw), FeaturesRaw, OutputDiscrete)
		require.NoError(t, err)
		_, err = l.Decide(context.Background(), testZone, testHub)
		assert.ErrorIs(t, err, ErrPolicyUnavailable, "raw %v", raw)
	}
}

func TestLearned_ContinuousClamps(t *testing.T) {
	cases := map[float64]float64{0.42: 0.42, -0.5: 0, 1.7: 1}
	for raw, want := range cases {
		l, err := NewLearned(constPredictor(8, raw), FeaturesNormalized, OutputContinuous)
		require.NoError(t, err)
		got, err := l.Decide(context.Background(), testZone, testHub)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12)
	}
}

func TestNewLearned_ShapeMismatchAtConstruction(t *testing.T) {
	_, err := NewLearned(constPredictor(8, 1), FeaturesRaw, OutputDiscrete)
	assert.ErrorIs(t, err, ErrFeatureShapeMismatch)

	_, err = NewLearned(constPredictor(6, 1), FeaturesNormalized, OutputDiscrete)
	assert.ErrorIs(t, err, ErrFeatureShapeMismatch)
}

func TestLearned_SixElementVectorOnEightDimConvention(t *testing.T) {
	called := false
	p := PredictorFunc{Dim: 8, Fn: func(context.Context, []float64) (float64, error) {
		called = true
		return 3, nil
	}}
	l, err := NewLearned(p, FeaturesNormalized, OutputDiscrete)
	require.NoError(t, err)

	_, err = l.DecideFeatures(context.Background(), FeaturesRaw.Features(testZone, testHub))
	assert.ErrorIs(t, err, ErrFeatureShapeMismatch)
	assert.False(t, called, "predictor must not be invoked with a bad vector")
}

func TestLearned_PredictorErrorIsUnavailable(t *testing.T) {
	p := PredictorFunc{Dim: 6, Fn: func(context.Context, []float64) (float64, error) {
		return 0, errors.New("connection refused")
	}}
	l, err := NewLearned(p, FeaturesRaw, OutputContinuous)
	require.NoError(t, err)

	_, err = l.Decide(context.Background(), testZone, testHub)
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}

func TestNewLearned_NilPredictor(t *testing.T) {
	_, err := NewLearned(nil, FeaturesRaw, OutputDiscrete)
	assert.ErrorIs(t, err, ErrPolicyUnavailable)

	var disabled *HTTPPredictor
	_, err = NewLearned(disabled, FeaturesRaw, OutputDiscrete)
	assert.ErrorIs(t, err, ErrPolicyUnavailable)
}

func TestParseNames(t *testing.T) {
	c, err := ParseFeatureConvention("normalized8")
	require.NoError(t, err)
	assert.Equal(t, FeaturesNormalized, c)
	_, err = ParseFeatureConvention("raw7")
	assert.Error(t, err)

	m, err := ParseOutputMode("continuous")
	require.NoError(t, err)
	assert.Equal(t, OutputContinuous, m)
	_, err = ParseOutputMode("probabilistic")
	assert.Error(t, err)
}
