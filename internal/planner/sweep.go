package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Grid is the range of boosts to try. Both sliders run from 0 to their max
// in Step increments; the max is always included.
type Grid struct {
	MaxAmbulances int `json:"max_ambulances"`
	MaxShelters   int `json:"max_shelters"`
	Step          int `json:"step"`
}

// DefaultGrid matches the operator sliders (0..200) at a coarse step.
func DefaultGrid() Grid {
	return Grid{MaxAmbulances: 200, MaxShelters: 200, Step: 50}
}

// Validate checks the grid bounds.
func (g Grid) Validate() error {
	if g.MaxAmbulances < 0 || g.MaxShelters < 0 {
		return fmt.Errorf("grid maxima must be non-negative")
	}
	if g.Step <= 0 {
		return fmt.Errorf("grid step must be positive, got %d", g.Step)
	}
	return nil
}

// Points enumerates the grid, ambulances outer.
func (g Grid) Points() []Boost {
	var pts []Boost
	for _, a := range steps(g.MaxAmbulances, g.Step) {
		for _, s := range steps(g.MaxShelters, g.Step) {
			pts = append(pts, Boost{ExtraAmbulances: a, ExtraShelters: s})
		}
	}
	return pts
}

func steps(limit, step int) []int {
	var out []int
	for v := 0; v < limit; v += step {
		out = append(out, v)
	}
	return append(out, limit)
}

// Outcome is the result of one grid point.
type Outcome struct {
	Boost
	RunID      string `json:"run_id,omitempty"`
	TotalSaved int64  `json:"total_saved"`
	Reason     string `json:"reason,omitempty"` // Set when the simulation failed
}

// Plan is a ranked sweep. Best comes first: most lives saved, then the
// smallest boost that achieves it.
type Plan struct {
	Grid     Grid      `json:"grid"`
	Baseline int64     `json:"baseline_saved"` // Saved with no boost
	Outcomes []Outcome `json:"outcomes"`
	Failed   int       `json:"failed"`
}

// Best returns the top-ranked successful outcome.
func (p *Plan) Best() (Outcome, bool) {
	for _, o := range p.Outcomes {
		if o.Reason == "" {
			return o, true
		}
	}
	return Outcome{}, false
}

// Simulator runs one boost. *Actor satisfies it.
type Simulator interface {
	Act(ctx context.Context, boost Boost) (*SimulateResult, error)
}

// Sweep runs every grid point with up to workers concurrent requests.
// Server-reported failures are recorded on their outcome; transport errors
// and context cancellation abort the sweep.
func Sweep(ctx context.Context, sim Simulator, grid Grid, workers int) (*Plan, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	points := grid.Points()
	outcomes := make([]Outcome, len(points))
	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o, err := runPoint(ctx, sim, points[i])
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				outcomes[i] = o
			}
		}()
	}

feed:
	for i := range points {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := &Plan{Grid: grid}
	for _, o := range outcomes {
		if o.Reason != "" {
			plan.Failed++
		}
		if o.Boost == (Boost{}) {
			plan.Baseline = o.TotalSaved
		}
	}
	plan.Outcomes = Rank(outcomes)
	slog.Info("sweep complete", "points", len(points), "failed", plan.Failed, "baseline_saved", plan.Baseline)
	return plan, nil
}

func runPoint(ctx context.Context, sim Simulator, b Boost) (Outcome, error) {
	res, err := sim.Act(ctx, b)
	var failed *FailedError
	switch {
	case errors.As(err, &failed):
		slog.Warn("grid point failed", "extra_ambulances", b.ExtraAmbulances, "extra_shelters", b.ExtraShelters, "reason", failed.Reason)
		return Outcome{Boost: b, Reason: failed.Reason}, nil
	case err != nil:
		return Outcome{}, err
	}
	return Outcome{Boost: b, RunID: res.RunID, TotalSaved: res.TotalSaved}, nil
}

// Rank orders outcomes best first. Failed outcomes sort last. The input is
// not modified.
func Rank(outcomes []Outcome) []Outcome {
	ranked := make([]Outcome, len(outcomes))
	copy(ranked, outcomes)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Reason == "") != (b.Reason == "") {
			return a.Reason == ""
		}
		if a.TotalSaved != b.TotalSaved {
			return a.TotalSaved > b.TotalSaved
		}
		return a.Total() < b.Total()
	})
	return ranked
}
