// Package policy decides how much of a zone's capacity ceiling to deliver
// each tick. A decision is a fraction in [0,1].
package policy

import (
	"context"
	"errors"

	"github.com/talgya/reliefsim/internal/world"
)

var (
	// ErrPolicyUnavailable means the external predictor could not answer.
	// Callers must fail the run rather than fall back to another policy.
	ErrPolicyUnavailable = errors.New("policy unavailable")

	// ErrFeatureShapeMismatch means the feature vector does not match the
	// dimensionality the predictor declares.
	ErrFeatureShapeMismatch = errors.New("feature shape mismatch")

	// ErrUnknownPolicy means a request named a policy that does not exist.
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Policy returns the capacity-utilization fraction for a zone this tick.
// Implementations must not mutate zone or hub.
type Policy interface {
	Name() string
	Decide(ctx context.Context, zone world.DisasterZone, hub world.ReliefHub) (float64, error)
}

// Heuristic always applies full effort.
type Heuristic struct{}

// Name implements Policy.
func (Heuristic) Name() string { return "heuristic" }

// Decide implements Policy.
func (Heuristic) Decide(context.Context, world.DisasterZone, world.ReliefHub) (float64, error) {
	return 1.0, nil
}
