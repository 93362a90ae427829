package engine

import (
	"github.com/talgya/reliefsim/internal/world"
)

// Simulation is the state of one run. It owns its pairs exclusively; build a
// new one from a fresh clone for every run.
type Simulation struct {
	Pairs      []world.Pair
	Tick       int     // Ticks completed
	TotalSaved float64 // Running sum of applied batches
}

// NewSimulation takes ownership of wc. The caller must not touch wc afterwards.
func NewSimulation(wc *world.WorkingCopy) *Simulation {
	pairs := wc.Pairs
	wc.Pairs = nil
	return &Simulation{Pairs: pairs}
}

// Remaining sums population still awaiting relief.
func (s *Simulation) Remaining() float64 {
	total := 0.0
	for _, p := range s.Pairs {
		total += p.Zone.Population
	}
	return total
}

// ActiveZones counts zones with population left.
func (s *Simulation) ActiveZones() int {
	n := 0
	for _, p := range s.Pairs {
		if p.Zone.Active() {
			n++
		}
	}
	return n
}

func (s *Simulation) advance(saved float64) {
	s.Tick++
	s.TotalSaved += saved
}

// Result is the outcome of a completed run.
type Result struct {
	Policy     string
	Ticks      int
	TotalSaved float64
	Final      []world.Pair
}
