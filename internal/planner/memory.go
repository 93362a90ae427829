package planner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const maxRecords = 10

// SweepRecord captures the headline of one sweep.
type SweepRecord struct {
	At            time.Time `json:"at"`
	Zones         int       `json:"zones"`
	Population    float64   `json:"population"`
	BaselineSaved int64     `json:"baseline_saved"`
	Best          Outcome   `json:"best"`
	Failed        int       `json:"failed"`
}

// Memory is a ring of recent sweep records kept on disk between runs.
type Memory struct {
	Records []SweepRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file. Returns empty memory if it is missing
// or unreadable.
func LoadMemory(path string) *Memory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Memory{path: path}
	}
	var mem Memory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("planner memory corrupted, starting fresh", "error", err)
		return &Memory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *Memory) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal planner memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write planner memory: %w", err)
	}
	return nil
}

// Record adds a sweep record, trimming to maxRecords.
func (m *Memory) Record(r SweepRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Last returns the most recent record.
func (m *Memory) Last() (SweepRecord, bool) {
	if len(m.Records) == 0 {
		return SweepRecord{}, false
	}
	return m.Records[len(m.Records)-1], true
}

// Summary renders recent sweeps one per line, oldest first.
func (m *Memory) Summary() string {
	var b strings.Builder
	for _, r := range m.Records {
		fmt.Fprintf(&b, "%s zones=%d baseline=%d best=%d (+A %d, +S %d)",
			r.At.Format(time.RFC3339), r.Zones, r.BaselineSaved, r.Best.TotalSaved,
			r.Best.ExtraAmbulances, r.Best.ExtraShelters)
		if r.Failed > 0 {
			fmt.Fprintf(&b, " failed=%d", r.Failed)
		}
		b.WriteString("\n")
	}
	return b.String()
}
