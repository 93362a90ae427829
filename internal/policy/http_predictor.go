package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/talgya/reliefsim/internal/observability"
)

// HTTPPredictor calls a model server that accepts
// {"features": [...]} and answers {"action": <number>}.
type HTTPPredictor struct {
	url        string
	inputDim   int
	httpClient *http.Client

	// Rate limiting: max calls per minute (0 = unlimited).
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// HTTPPredictorConfig configures an HTTPPredictor.
type HTTPPredictorConfig struct {
	URL       string
	InputDim  int
	Timeout   time.Duration
	MaxPerMin int
}

// NewHTTPPredictor creates a model server client.
// Returns nil if no URL is configured (learned policy disabled).
func NewHTTPPredictor(cfg HTTPPredictorConfig) *HTTPPredictor {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPredictor{
		url:        cfg.URL,
		inputDim:   cfg.InputDim,
		httpClient: &http.Client{Timeout: timeout},
		maxPerMin:  cfg.MaxPerMin,
	}
}

// Enabled returns true if the predictor has an endpoint.
func (p *HTTPPredictor) Enabled() bool {
	return p != nil && p.url != ""
}

// InputDim implements Predictor.
func (p *HTTPPredictor) InputDim() int {
	if p == nil {
		return 0
	}
	return p.inputDim
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	Action *float64 `json:"action"`
}

// Predict implements Predictor.
func (p *HTTPPredictor) Predict(ctx context.Context, features []float64) (float64, error) {
	if !p.Enabled() {
		return 0, fmt.Errorf("%w: predictor not configured", ErrPolicyUnavailable)
	}
	if err := p.take(); err != nil {
		return 0, err
	}

	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordPredictorCall(0, time.Since(start), false)
		return 0, fmt.Errorf("%w: predictor call: %v", ErrPolicyUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	observability.RecordPredictorCall(resp.StatusCode, time.Since(start), err == nil && resp.StatusCode == http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("%w: read response: %v", ErrPolicyUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: predictor error %d: %s", ErrPolicyUnavailable, resp.StatusCode, string(respBody))
	}

	var out predictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("%w: unmarshal response: %v", ErrPolicyUnavailable, err)
	}
	if out.Action == nil {
		return 0, fmt.Errorf("%w: response has no action", ErrPolicyUnavailable)
	}

	slog.Debug("predictor call", "features", len(features), "action", *out.Action)
	return *out.Action, nil
}

func (p *HTTPPredictor) take() error {
	if p.maxPerMin <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.After(p.resetAt) {
		p.callCount = 0
		p.resetAt = now.Add(time.Minute)
	}
	if p.callCount >= p.maxPerMin {
		return fmt.Errorf("%w: rate limit exceeded (%d calls/min)", ErrPolicyUnavailable, p.maxPerMin)
	}
	p.callCount++
	return nil
}
