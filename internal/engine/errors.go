package engine

import (
	"errors"
	"fmt"

	"github.com/talgya/reliefsim/internal/policy"
	"github.com/talgya/reliefsim/internal/world"
)

// Reason is the code reported with a failed simulation.
type Reason string

const (
	ReasonDataError            Reason = "data_error"
	ReasonPolicyUnavailable    Reason = "policy_unavailable"
	ReasonFeatureShapeMismatch Reason = "feature_shape_mismatch"
	ReasonInvalidInput         Reason = "invalid_input"
	ReasonInternal             Reason = "internal"
)

// SimulationError reports an aborted run.
type SimulationError struct {
	Reason Reason
	Tick   int    // Tick during which the run failed
	Zone   string // Zone being decided when it failed
	Err    error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed (%s) at tick %d, zone %s: %v", e.Reason, e.Tick, e.Zone, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// ReasonOf classifies any error from loading, policy construction or a run.
func ReasonOf(err error) Reason {
	var se *SimulationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Reason
	case errors.Is(err, policy.ErrFeatureShapeMismatch):
		return ReasonFeatureShapeMismatch
	case errors.Is(err, policy.ErrPolicyUnavailable):
		return ReasonPolicyUnavailable
	case errors.Is(err, world.ErrData):
		return ReasonDataError
	case errors.Is(err, world.ErrInvalidBoost), errors.Is(err, policy.ErrUnknownPolicy):
		return ReasonInvalidInput
	}
	return ReasonInternal
}
