package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Boost is one operator slider setting.
type Boost struct {
	ExtraAmbulances int `json:"extra_ambulances"`
	ExtraShelters   int `json:"extra_shelters"`
}

// Total is the number of extra units the boost commits.
func (b Boost) Total() int { return b.ExtraAmbulances + b.ExtraShelters }

// SimulateResult is the subset of POST /api/v1/simulate the planner uses.
type SimulateResult struct {
	RunID      string `json:"run_id"`
	Policy     string `json:"policy"`
	TotalSaved int64  `json:"total_saved"`
}

// FailedError is a simulate call the server answered with a failure reason.
type FailedError struct {
	Status int
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("simulation failed (%d): %s", e.Status, e.Reason)
}

// Actor runs simulations via the API.
type Actor struct {
	BaseURL    string
	Policy     string // Empty = server default
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL.
func NewActor(baseURL, policyName string) *Actor {
	return &Actor{
		BaseURL: baseURL,
		Policy:  policyName,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Act sends one boost to POST /api/v1/simulate.
func (a *Actor) Act(ctx context.Context, boost Boost) (*SimulateResult, error) {
	body, err := json.Marshal(struct {
		Boost
		Policy string `json:"policy,omitempty"`
	}{boost, a.Policy})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/api/v1/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST simulate: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Reason string `json:"reason"`
		}
		if json.Unmarshal(respBody, &failure) == nil && failure.Reason != "" {
			return nil, &FailedError{Status: resp.StatusCode, Reason: failure.Reason}
		}
		return nil, fmt.Errorf("simulate failed (%d): %s", resp.StatusCode, string(bytes.TrimSpace(respBody)))
	}

	var result SimulateResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
