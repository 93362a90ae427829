// Package planner explores operator resource boosts against a running
// reliefsim API. It observes the baseline, sweeps a grid of boosts through
// the simulate endpoint and ranks the outcomes.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/world"
)

// Snapshot holds what one observation collected.
type Snapshot struct {
	Status Status       `json:"status"`
	Pairs  []world.Pair `json:"pairs"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Name            string       `json:"name"`
	Zones           int          `json:"zones"`
	TotalPopulation float64      `json:"total_population"`
	Ticks           int          `json:"ticks"`
	Rates           engine.Rates `json:"rates"`
	Requery         string       `json:"requery"`
	DefaultPolicy   string       `json:"default_policy"`
	Learned         bool         `json:"learned"`
}

// Observer fetches baseline state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and zones.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	var zones struct {
		Pairs []world.Pair `json:"pairs"`
	}
	if err := o.fetchJSON(ctx, "/api/v1/zones", &zones); err != nil {
		return nil, fmt.Errorf("fetch zones: %w", err)
	}
	snap.Pairs = zones.Pairs
	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
