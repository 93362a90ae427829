// Package world holds the relief baseline: disaster zones, their relief hubs,
// and the working copies handed to simulation runs.
package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID identifies a zone or hub. Datasets use both JSON strings and numbers
// for identifiers, so both decode into the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// DisasterZone is an area with an affected population awaiting relief.
// Only Population changes during a run; the remaining attributes are policy features.
type DisasterZone struct {
	Zone          ID      `json:"zone"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Population    float64 `json:"population"`
	Severity      float64 `json:"severity"`
	Urgency       float64 `json:"urgency"`
	Risk          float64 `json:"risk"`
	Distance      float64 `json:"distance"`
	Accessibility float64 `json:"accessibility"`
}

// Active reports whether the zone still has population to serve.
func (z DisasterZone) Active() bool {
	return z.Population > 0
}

// ReliefHub is the resource pool serving exactly one zone.
type ReliefHub struct {
	Hub ID      `json:"hub"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	A   int     `json:"A"` // Ambulances / medical units
	T   int     `json:"T"` // Transport units
	S   int     `json:"S"` // Shelter units
}

// UnmarshalJSON tolerates whole-valued floats (10.0) for resource counts,
// which exporters often emit.
func (h *ReliefHub) UnmarshalJSON(data []byte) error {
	var raw struct {
		Hub ID      `json:"hub"`
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
		A   float64 `json:"A"`
		T   float64 `json:"T"`
		S   float64 `json:"S"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, v := range []float64{raw.A, raw.T, raw.S} {
		if v != math.Trunc(v) {
			return fmt.Errorf("hub %s: resource count %v is not whole", raw.Hub, v)
		}
	}
	*h = ReliefHub{Hub: raw.Hub, Lat: raw.Lat, Lon: raw.Lon, A: int(raw.A), T: int(raw.T), S: int(raw.S)}
	return nil
}

// Pair associates a zone with its hub. Pairs never share resources.
type Pair struct {
	Zone DisasterZone `json:"disaster_zone"`
	Hub  ReliefHub    `json:"relief_hub"`
}

// String renders a short label for logs.
func (p Pair) String() string {
	return "zone " + string(p.Zone.Zone) + "/hub " + string(p.Hub.Hub) +
		" pop=" + strconv.FormatFloat(p.Zone.Population, 'f', 0, 64)
}

// validate checks the invariants a baseline record must satisfy.
func (p Pair) validate(i int) error {
	switch {
	case p.Zone.Zone == "":
		return fmt.Errorf("%w: record %d: disaster_zone.zone is empty", ErrData, i)
	case p.Hub.Hub == "":
		return fmt.Errorf("%w: record %d: relief_hub.hub is empty", ErrData, i)
	case p.Zone.Population < 0:
		return fmt.Errorf("%w: record %d: negative population %v", ErrData, i, p.Zone.Population)
	case p.Hub.A < 0 || p.Hub.T < 0 || p.Hub.S < 0:
		return fmt.Errorf("%w: record %d: negative hub resources A=%d T=%d S=%d", ErrData, i, p.Hub.A, p.Hub.T, p.Hub.S)
	}
	return nil
}
