package planner

import (
	"math"
	"sort"
)

// Resource names a hub resource.
type Resource string

const (
	ResourceAmbulance Resource = "ambulance"
	ResourceTransport Resource = "transport"
	ResourceShelter   Resource = "shelter"
	ResourceNone      Resource = "none" // Zone clears within the horizon
)

// ZoneHealth is the deterministic outlook for one zone under full effort.
type ZoneHealth struct {
	Zone      string   `json:"zone"`
	Ceiling   float64  `json:"ceiling"`
	Shortfall float64  `json:"shortfall"` // Population left after the horizon at full effort
	Limit     Resource `json:"limit"`
}

// Health summarizes the baseline before any simulations are spent.
type Health struct {
	Zones     []ZoneHealth     `json:"zones"`
	Limits    map[Resource]int `json:"limits"`
	Shortfall float64          `json:"shortfall"`
	// Boostable is false when every short zone is bound by transport,
	// which operator boosts cannot raise.
	Boostable bool `json:"boostable"`
}

// Triage computes per-zone bottlenecks from a snapshot. Zones are returned
// worst shortfall first.
func Triage(snap *Snapshot) *Health {
	h := &Health{Limits: make(map[Resource]int)}
	r := snap.Status.Rates
	horizon := float64(snap.Status.Ticks)

	for _, p := range snap.Pairs {
		if p.Zone.Population <= 0 {
			continue
		}
		ceil := r.Ceiling(p.Hub.A, p.Hub.T, p.Hub.S)
		zh := ZoneHealth{
			Zone:      string(p.Zone.Zone),
			Ceiling:   ceil,
			Shortfall: math.Max(0, p.Zone.Population-math.Floor(ceil)*horizon),
			Limit:     ResourceNone,
		}
		if zh.Shortfall > 0 {
			zh.Limit = binding(float64(p.Hub.A)*r.Ambulance, float64(p.Hub.T)*r.Transport, float64(p.Hub.S)*r.Shelter)
			h.Shortfall += zh.Shortfall
		}
		h.Limits[zh.Limit]++
		h.Zones = append(h.Zones, zh)
	}

	sort.SliceStable(h.Zones, func(i, j int) bool { return h.Zones[i].Shortfall > h.Zones[j].Shortfall })

	h.Boostable = h.Limits[ResourceAmbulance]+h.Limits[ResourceShelter] > 0
	return h
}

// binding picks the smallest capacity. Ties favor the resource a boost can raise.
func binding(amb, trans, shel float64) Resource {
	switch {
	case amb <= trans && amb <= shel:
		return ResourceAmbulance
	case shel <= trans:
		return ResourceShelter
	}
	return ResourceTransport
}
