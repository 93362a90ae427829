package policy

import (
	"context"
	"fmt"
	"math"

	"github.com/talgya/reliefsim/internal/world"
)

// FeatureConvention fixes the order and scaling of predictor inputs.
// Predictors are positional, so the order here must never change.
type FeatureConvention uint8

const (
	// FeaturesRaw is [risk, urgency, population, A, T, S].
	FeaturesRaw FeatureConvention = iota
	// FeaturesNormalized is [severity, urgency, population/1000, A/100, T/100, S/100, distance/100, accessibility].
	FeaturesNormalized
)

// Dim returns the vector length for the convention.
func (c FeatureConvention) Dim() int {
	switch c {
	case FeaturesRaw:
		return 6
	case FeaturesNormalized:
		return 8
	}
	return 0
}

// String returns the configuration name of the convention.
func (c FeatureConvention) String() string {
	switch c {
	case FeaturesRaw:
		return "raw6"
	case FeaturesNormalized:
		return "normalized8"
	}
	return fmt.Sprintf("convention(%d)", c)
}

// ParseFeatureConvention maps a configuration name to a convention.
func ParseFeatureConvention(s string) (FeatureConvention, error) {
	switch s {
	case "raw6", "raw":
		return FeaturesRaw, nil
	case "normalized8", "normalized":
		return FeaturesNormalized, nil
	}
	return 0, fmt.Errorf("unknown feature convention %q", s)
}

// Features builds the input vector for one zone/hub pair.
func (c FeatureConvention) Features(zone world.DisasterZone, hub world.ReliefHub) []float64 {
	switch c {
	case FeaturesRaw:
		return []float64{
			zone.Risk,
			zone.Urgency,
			zone.Population,
			float64(hub.A),
			float64(hub.T),
			float64(hub.S),
		}
	case FeaturesNormalized:
		return []float64{
			zone.Severity,
			zone.Urgency,
			zone.Population / 1000,
			float64(hub.A) / 100,
			float64(hub.T) / 100,
			float64(hub.S) / 100,
			zone.Distance / 100,
			zone.Accessibility,
		}
	}
	return nil
}

// OutputMode selects how raw predictor output becomes a fraction.
type OutputMode uint8

const (
	// OutputDiscrete treats output as a class: 0 none, 1 low, 2 medium, 3 full.
	OutputDiscrete OutputMode = iota
	// OutputContinuous passes a [0,1] scalar through.
	OutputContinuous
)

// String returns the configuration name of the mode.
func (m OutputMode) String() string {
	if m == OutputContinuous {
		return "continuous"
	}
	return "discrete"
}

// ParseOutputMode maps a configuration name to a mode.
func ParseOutputMode(s string) (OutputMode, error) {
	switch s {
	case "discrete":
		return OutputDiscrete, nil
	case "continuous":
		return OutputContinuous, nil
	}
	return 0, fmt.Errorf("unknown output mode %q", s)
}

// discreteFractions maps action classes to utilization.
var discreteFractions = [...]float64{0.0, 0.3, 0.6, 1.0}

// Fraction converts raw predictor output to a utilization fraction.
func (m OutputMode) Fraction(raw float64) (float64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: predictor returned %v", ErrPolicyUnavailable, raw)
	}
	if m == OutputContinuous {
		return math.Max(0, math.Min(1, raw)), nil
	}
	class := int(math.Round(raw))
	if class < 0 || class >= len(discreteFractions) {
		return 0, fmt.Errorf("%w: predictor returned unknown action class %v", ErrPolicyUnavailable, raw)
	}
	return discreteFractions[class], nil
}

// Predictor is an externally trained decision function. It is called with a
// single feature vector and must not retain or modify it.
type Predictor interface {
	// InputDim is the feature vector length the predictor was trained on.
	InputDim() int
	Predict(ctx context.Context, features []float64) (float64, error)
}

// Learned adapts a Predictor to the Policy interface.
type Learned struct {
	predictor  Predictor
	convention FeatureConvention
	output     OutputMode
}

// NewLearned checks that the predictor accepts the convention's vector
// length, so misconfiguration fails before any tick runs.
func NewLearned(p Predictor, convention FeatureConvention, output OutputMode) (*Learned, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no predictor configured", ErrPolicyUnavailable)
	}
	if e, ok := p.(interface{ Enabled() bool }); ok && !e.Enabled() {
		return nil, fmt.Errorf("%w: no predictor configured", ErrPolicyUnavailable)
	}
	want := convention.Dim()
	if want == 0 {
		return nil, fmt.Errorf("%w: unknown convention %s", ErrFeatureShapeMismatch, convention)
	}
	if got := p.InputDim(); got != want {
		return nil, fmt.Errorf("%w: predictor expects %d features, convention %s builds %d",
			ErrFeatureShapeMismatch, got, convention, want)
	}
	return &Learned{predictor: p, convention: convention, output: output}, nil
}

// Name implements Policy.
func (l *Learned) Name() string { return "learned" }

// Convention returns the configured feature convention.
func (l *Learned) Convention() FeatureConvention { return l.convention }

// Output returns the configured output mode.
func (l *Learned) Output() OutputMode { return l.output }

// Decide implements Policy.
func (l *Learned) Decide(ctx context.Context, zone world.DisasterZone, hub world.ReliefHub) (float64, error) {
	return l.DecideFeatures(ctx, l.convention.Features(zone, hub))
}

// DecideFeatures runs the predictor on a prebuilt vector.
func (l *Learned) DecideFeatures(ctx context.Context, features []float64) (float64, error) {
	if want := l.convention.Dim(); len(features) != want {
		return 0, fmt.Errorf("%w: got %d features, %s expects %d",
			ErrFeatureShapeMismatch, len(features), l.convention, want)
	}
	raw, err := l.predictor.Predict(ctx, features)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPolicyUnavailable, err)
	}
	return l.output.Fraction(raw)
}

// PredictorFunc adapts an in-process function to Predictor.
type PredictorFunc struct {
	Dim int
	Fn  func(ctx context.Context, features []float64) (float64, error)
}

// InputDim implements Predictor.
func (f PredictorFunc) InputDim() int { return f.Dim }

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, features []float64) (float64, error) {
	return f.Fn(ctx, features)
}
