// Package persistence provides SQLite storage for the baseline dataset and
// the history of simulation runs.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/report"
	"github.com/talgya/reliefsim/internal/world"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS baseline (
		ord INTEGER PRIMARY KEY,
		zone_id TEXT NOT NULL,
		zone_lat REAL NOT NULL,
		zone_lon REAL NOT NULL,
		population REAL NOT NULL,
		severity REAL NOT NULL,
		urgency REAL NOT NULL,
		risk REAL NOT NULL,
		distance REAL NOT NULL,
		accessibility REAL NOT NULL,
		hub_id TEXT NOT NULL,
		hub_lat REAL NOT NULL,
		hub_lon REAL NOT NULL,
		a INTEGER NOT NULL,
		t INTEGER NOT NULL,
		s INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		policy TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		rate_ambulance REAL NOT NULL,
		rate_transport REAL NOT NULL,
		rate_shelter REAL NOT NULL,
		extra_ambulances INTEGER NOT NULL,
		extra_shelters INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		total_saved INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS run_zones (
		run_id TEXT NOT NULL REFERENCES runs(id),
		ord INTEGER NOT NULL,
		zone_id TEXT NOT NULL,
		remaining_population INTEGER NOT NULL,
		ambulances INTEGER NOT NULL,
		shelters INTEGER NOT NULL,
		PRIMARY KEY (run_id, ord)
	);

	CREATE TABLE IF NOT EXISTS run_ticks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		saved REAL NOT NULL,
		total_saved REAL NOT NULL,
		active_zones INTEGER NOT NULL,
		remaining REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// baselineRow is the flat storage form of a world.Pair.
type baselineRow struct {
	Ord           int     `db:"ord"`
	ZoneID        string  `db:"zone_id"`
	ZoneLat       float64 `db:"zone_lat"`
	ZoneLon       float64 `db:"zone_lon"`
	Population    float64 `db:"population"`
	Severity      float64 `db:"severity"`
	Urgency       float64 `db:"urgency"`
	Risk          float64 `db:"risk"`
	Distance      float64 `db:"distance"`
	Accessibility float64 `db:"accessibility"`
	HubID         string  `db:"hub_id"`
	HubLat        float64 `db:"hub_lat"`
	HubLon        float64 `db:"hub_lon"`
	A             int     `db:"a"`
	T             int     `db:"t"`
	S             int     `db:"s"`
}

// HasBaseline reports whether a baseline has been imported.
func (db *DB) HasBaseline() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM baseline"); err != nil {
		return false
	}
	return n > 0
}

// SaveBaseline replaces the stored baseline.
func (db *DB) SaveBaseline(b *world.Baseline) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM baseline"); err != nil {
		return err
	}

	for i, p := range b.Pairs() {
		row := baselineRow{
			Ord: i, ZoneID: string(p.Zone.Zone), ZoneLat: p.Zone.Lat, ZoneLon: p.Zone.Lon,
			Population: p.Zone.Population, Severity: p.Zone.Severity, Urgency: p.Zone.Urgency,
			Risk: p.Zone.Risk, Distance: p.Zone.Distance, Accessibility: p.Zone.Accessibility,
			HubID: string(p.Hub.Hub), HubLat: p.Hub.Lat, HubLon: p.Hub.Lon,
			A: p.Hub.A, T: p.Hub.T, S: p.Hub.S,
		}
		_, err := tx.NamedExec(`INSERT INTO baseline
			(ord, zone_id, zone_lat, zone_lon, population, severity, urgency, risk, distance,
			 accessibility, hub_id, hub_lat, hub_lon, a, t, s)
			VALUES (:ord, :zone_id, :zone_lat, :zone_lon, :population, :severity, :urgency, :risk,
			 :distance, :accessibility, :hub_id, :hub_lat, :hub_lon, :a, :t, :s)`, row)
		if err != nil {
			return fmt.Errorf("insert zone %s: %w", p.Zone.Zone, err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('baseline_imported_at', ?)",
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadBaseline reads the stored baseline in its original order.
func (db *DB) LoadBaseline() (*world.Baseline, error) {
	var rows []baselineRow
	if err := db.conn.Select(&rows, "SELECT * FROM baseline ORDER BY ord"); err != nil {
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no baseline imported", world.ErrData)
	}

	pairs := make([]world.Pair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, world.Pair{
			Zone: world.DisasterZone{
				Zone: world.ID(r.ZoneID), Lat: r.ZoneLat, Lon: r.ZoneLon,
				Population: r.Population, Severity: r.Severity, Urgency: r.Urgency,
				Risk: r.Risk, Distance: r.Distance, Accessibility: r.Accessibility,
			},
			Hub: world.ReliefHub{
				Hub: world.ID(r.HubID), Lat: r.HubLat, Lon: r.HubLon,
				A: r.A, T: r.T, S: r.S,
			},
		})
	}
	return world.NewBaseline(pairs)
}

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is one row of run history.
type RunRecord struct {
	ID              string    `db:"id" json:"id"`
	CreatedAt       time.Time `db:"-" json:"created_at"`
	Policy          string    `db:"policy" json:"policy"`
	Ticks           int       `db:"ticks" json:"ticks"`
	RateAmbulance   float64   `db:"rate_ambulance" json:"rate_ambulance"`
	RateTransport   float64   `db:"rate_transport" json:"rate_transport"`
	RateShelter     float64   `db:"rate_shelter" json:"rate_shelter"`
	ExtraAmbulances int       `db:"extra_ambulances" json:"extra_ambulances"`
	ExtraShelters   int       `db:"extra_shelters" json:"extra_shelters"`
	Status          string    `db:"status" json:"status"`
	Reason          string    `db:"reason" json:"reason,omitempty"`
	TotalSaved      int64     `db:"total_saved" json:"total_saved"`
}

// RunDetail is a run plus its zone table and history. Failed runs have neither.
type RunDetail struct {
	RunRecord
	Zones   []report.ZoneReport `json:"zones"`
	History []engine.TickDelta  `json:"history"`
}

// NewRunRecord fills the identifying fields of a run.
func NewRunRecord(policyName string, cfg engine.Config, extraAmbulances, extraShelters int) RunRecord {
	return RunRecord{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Policy:          policyName,
		Ticks:           cfg.Ticks,
		RateAmbulance:   cfg.Rates.Ambulance,
		RateTransport:   cfg.Rates.Transport,
		RateShelter:     cfg.Rates.Shelter,
		ExtraAmbulances: extraAmbulances,
		ExtraShelters:   extraShelters,
	}
}

// SaveRun stores a run. rep is nil for failed runs, which store no zone rows.
func (db *DB) SaveRun(rec RunRecord, rep *report.Report) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if rep != nil {
		rec.Status = StatusCompleted
		rec.TotalSaved = rep.TotalSaved
	} else {
		rec.Status = StatusFailed
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`INSERT INTO runs
		(id, created_at, policy, ticks, rate_ambulance, rate_transport, rate_shelter,
		 extra_ambulances, extra_shelters, status, reason, total_saved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(timeLayout), rec.Policy, rec.Ticks,
		rec.RateAmbulance, rec.RateTransport, rec.RateShelter,
		rec.ExtraAmbulances, rec.ExtraShelters, rec.Status, rec.Reason, rec.TotalSaved,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}

	if rep != nil {
		for i, z := range rep.Zones {
			_, err := tx.Exec(`INSERT INTO run_zones
				(run_id, ord, zone_id, remaining_population, ambulances, shelters)
				VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, i, z.ZoneID, z.RemainingPopulation, z.Ambulances, z.Shelters)
			if err != nil {
				return fmt.Errorf("insert run zone %s: %w", z.ZoneID, err)
			}
		}
		for _, d := range rep.History {
			_, err := tx.Exec(`INSERT INTO run_ticks
				(run_id, tick, saved, total_saved, active_zones, remaining)
				VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, d.Tick, d.Saved, d.TotalSaved, d.ActiveZones, d.Remaining)
			if err != nil {
				return fmt.Errorf("insert run tick %d: %w", d.Tick, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("run saved", "id", rec.ID, "status", rec.Status, "total_saved", rec.TotalSaved)
	return nil
}

const runColumns = `id, created_at, policy, ticks, rate_ambulance, rate_transport, rate_shelter,
	extra_ambulances, extra_shelters, status, reason, total_saved`

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := db.conn.Queryx("SELECT "+runColumns+" FROM runs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun loads one run with its zone table and tick history.
func (db *DB) GetRun(id string) (*RunDetail, error) {
	row := db.conn.QueryRowx("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{RunRecord: rec}
	if err := db.conn.Select(&detail.Zones,
		"SELECT zone_id, remaining_population, ambulances, shelters FROM run_zones WHERE run_id = ? ORDER BY ord",
		id,
	); err != nil {
		return nil, fmt.Errorf("run zones: %w", err)
	}

	var ticks []struct {
		Tick        int     `db:"tick"`
		Saved       float64 `db:"saved"`
		TotalSaved  float64 `db:"total_saved"`
		ActiveZones int     `db:"active_zones"`
		Remaining   float64 `db:"remaining"`
	}
	if err := db.conn.Select(&ticks,
		"SELECT tick, saved, total_saved, active_zones, remaining FROM run_ticks WHERE run_id = ? ORDER BY tick",
		id,
	); err != nil {
		return nil, fmt.Errorf("run ticks: %w", err)
	}
	for _, t := range ticks {
		detail.History = append(detail.History, engine.TickDelta(t))
	}
	return detail, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (RunRecord, error) {
	var rec RunRecord
	var created string
	err := r.Scan(&rec.ID, &created, &rec.Policy, &rec.Ticks,
		&rec.RateAmbulance, &rec.RateTransport, &rec.RateShelter,
		&rec.ExtraAmbulances, &rec.ExtraShelters, &rec.Status, &rec.Reason, &rec.TotalSaved)
	if err != nil {
		return rec, err
	}
	rec.CreatedAt, err = time.Parse(timeLayout, created)
	return rec, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
