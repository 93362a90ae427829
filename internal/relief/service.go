// Package relief runs complete simulations: clone the baseline, apply the
// operator's boost, run the engine with the chosen policy and record the outcome.
package relief

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/observability"
	"github.com/talgya/reliefsim/internal/persistence"
	"github.com/talgya/reliefsim/internal/policy"
	"github.com/talgya/reliefsim/internal/report"
	"github.com/talgya/reliefsim/internal/world"
)

// Policy names accepted in requests.
const (
	PolicyHeuristic = "heuristic"
	PolicyLearned   = "learned"
)

// Request is one operator simulation request.
type Request struct {
	ExtraAmbulances int    `json:"extra_ambulances"`
	ExtraShelters   int    `json:"extra_shelters"`
	Policy          string `json:"policy"` // Empty = service default
}

// Outcome is a completed simulation.
type Outcome struct {
	RunID string `json:"run_id,omitempty"`
	*report.Report
}

// Service owns the handles a simulation needs. The baseline can be swapped
// between runs; a run always works on its own clone.
type Service struct {
	Config        engine.Config
	Learned       *policy.Learned // nil when no predictor is configured
	DB            *persistence.DB // nil disables run history
	DefaultPolicy string

	// LearnedErr is why the learned policy could not be built, if it was
	// configured. Learned requests fail with it.
	LearnedErr error

	mu       sync.RWMutex
	baseline *world.Baseline
}

// NewService creates a service over baseline.
func NewService(baseline *world.Baseline, cfg engine.Config) (*Service, error) {
	if baseline == nil {
		return nil, fmt.Errorf("%w: nil baseline", world.ErrData)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{Config: cfg, DefaultPolicy: PolicyHeuristic, baseline: baseline}, nil
}

// Baseline returns the current baseline handle.
func (s *Service) Baseline() *world.Baseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseline
}

// SetBaseline replaces the baseline for subsequent runs.
func (s *Service) SetBaseline(b *world.Baseline) {
	s.mu.Lock()
	s.baseline = b
	s.mu.Unlock()
	slog.Info("baseline replaced", "zones", b.Len(), "population", b.TotalPopulation())
}

// Policy resolves a policy by name. A learned request without a configured
// predictor fails; it never degrades to the heuristic.
func (s *Service) Policy(name string) (policy.Policy, error) {
	if name == "" {
		name = s.DefaultPolicy
	}
	switch name {
	case PolicyHeuristic:
		return policy.Heuristic{}, nil
	case PolicyLearned:
		switch {
		case s.Learned != nil:
			return s.Learned, nil
		case s.LearnedErr != nil:
			return nil, fmt.Errorf("learned policy: %w", s.LearnedErr)
		}
		return nil, fmt.Errorf("%w: learned policy not configured", policy.ErrPolicyUnavailable)
	}
	return nil, fmt.Errorf("%w: %q", policy.ErrUnknownPolicy, name)
}

// Simulate runs one request to completion. On failure it returns an error
// classified by engine.ReasonOf and no outcome.
func (s *Service) Simulate(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	name := req.Policy
	if name == "" {
		name = s.DefaultPolicy
	}

	rep, err := s.simulate(ctx, name, req)

	var runID string
	if s.DB != nil {
		rec := persistence.NewRunRecord(name, s.Config, req.ExtraAmbulances, req.ExtraShelters)
		if err != nil {
			rec.Reason = string(engine.ReasonOf(err))
		}
		if saveErr := s.DB.SaveRun(rec, rep); saveErr != nil {
			slog.Error("run history save failed", "error", saveErr)
		} else {
			runID = rec.ID
		}
	}

	if err != nil {
		reason := engine.ReasonOf(err)
		observability.RecordRun(name, false, string(reason), 0, time.Since(start))
		slog.Warn("simulation failed", "policy", name, "reason", reason, "error", err)
		return nil, err
	}

	observability.RecordRun(name, true, "", rep.TotalSaved, time.Since(start))
	slog.Info("simulation complete",
		"run_id", runID,
		"policy", name,
		"ticks", rep.Ticks,
		"extra_ambulances", req.ExtraAmbulances,
		"extra_shelters", req.ExtraShelters,
		"total_saved", rep.TotalSaved,
		"elapsed", time.Since(start),
	)
	return &Outcome{RunID: runID, Report: rep}, nil
}

func (s *Service) simulate(ctx context.Context, name string, req Request) (*report.Report, error) {
	p, err := s.Policy(name)
	if err != nil {
		return nil, err
	}

	wc := s.Baseline().Clone()
	if err := world.ApplyResourceBoost(wc, req.ExtraAmbulances, req.ExtraShelters); err != nil {
		return nil, err
	}

	eng, err := engine.NewEngine(s.Config)
	if err != nil {
		return nil, err
	}
	agg := report.NewAggregator()
	eng.OnTick = agg.Observe

	res, err := eng.Run(ctx, engine.NewSimulation(wc), p)
	if err != nil {
		return nil, err
	}
	return agg.Finish(res), nil
}
