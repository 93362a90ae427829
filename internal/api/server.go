// Package api serves the relief simulator over HTTP.
// GET endpoints are public and read-only. Replacing the baseline requires
// a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/persistence"
	"github.com/talgya/reliefsim/internal/relief"
	"github.com/talgya/reliefsim/internal/world"
)

const (
	maxBodyBytes    = 8 << 20
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// Server exposes a relief.Service.
type Server struct {
	Relief   *relief.Service
	Port     int
	AdminKey string // Bearer token for POST /baseline. Empty = disabled.

	// Simulation requests allowed per client per minute. Zero uses 60.
	SimulatePerMinute int
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	perMin := s.SimulatePerMinute
	if perMin <= 0 {
		perMin = 60
	}
	simLimiter := NewRateLimiter(perMin, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/zones", s.handleZones)
	mux.HandleFunc("/api/v1/simulate", RateLimitMiddleware(simLimiter, s.handleSimulate))
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/run/", s.handleRunDetail)
	mux.Handle("/metrics", promhttp.Handler())

	// Admin endpoints.
	mux.HandleFunc("/api/v1/baseline", s.adminOnly(s.handleBaseline))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS adds a comma-separated list to the localhost defaults.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
		"http://localhost:8501": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no RELIEFSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	b := s.Relief.Baseline()
	cfg := s.Relief.Config

	status := map[string]any{
		"name":             "reliefsim",
		"zones":            b.Len(),
		"total_population": b.TotalPopulation(),
		"ticks":            cfg.Ticks,
		"rates":            cfg.Rates,
		"requery":          cfg.Requery.String(),
		"default_policy":   s.Relief.DefaultPolicy,
		"learned":          s.Relief.Learned != nil,
		"history":          s.Relief.DB != nil,
	}
	if s.Relief.Learned != nil {
		status["features"] = s.Relief.Learned.Convention().String()
		status["output"] = s.Relief.Learned.Output().String()
	}
	if s.Relief.DB != nil {
		if at, err := s.Relief.DB.GetMeta("baseline_imported_at"); err == nil && at != "" {
			status["baseline_imported_at"] = at
		}
	}
	writeJSON(w, status)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	pairs := s.Relief.Baseline().Pairs()
	writeJSON(w, map[string]any{
		"count": len(pairs),
		"pairs": pairs,
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req relief.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	out, err := s.Relief.Simulate(r.Context(), req)
	if err != nil {
		reason := engine.ReasonOf(err)
		writeJSONStatus(w, statusForReason(reason), map[string]any{
			"error":  "simulation failed",
			"reason": reason,
		})
		return
	}
	writeJSON(w, out)
}

func statusForReason(reason engine.Reason) int {
	switch reason {
	case engine.ReasonInvalidInput:
		return http.StatusBadRequest
	case engine.ReasonPolicyUnavailable:
		return http.StatusServiceUnavailable
	case engine.ReasonDataError, engine.ReasonFeatureShapeMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.Relief.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.Relief.DB.RecentRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if s.Relief.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/run/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing run id", http.StatusBadRequest)
		return
	}

	detail, err := s.Relief.DB.GetRun(id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get run failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, detail)
}

// handleBaseline replaces the baseline with the posted dataset. The dataset is
// validated in full before anything is swapped.
func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, err := world.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"reason": engine.ReasonOf(err),
		})
		return
	}

	if s.Relief.DB != nil {
		if err := s.Relief.DB.SaveBaseline(b); err != nil {
			slog.Error("baseline save failed", "error", err)
			http.Error(w, "baseline save failed", http.StatusInternalServerError)
			return
		}
	}
	s.Relief.SetBaseline(b)

	writeJSON(w, map[string]any{
		"zones":            b.Len(),
		"total_population": b.TotalPopulation(),
		"message":          "baseline replaced",
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
