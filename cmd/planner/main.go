// Command planner sweeps operator resource boosts against a running reliefsim
// API and logs which boost saves the most lives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/reliefsim/internal/planner"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("RELIEFSIM_API_URL", "http://localhost:8080")
	policyName := os.Getenv("PLANNER_POLICY")
	memoryPath := envOrDefault("PLANNER_MEMORY", "planner_memory.json")
	intervalMin := envIntOrDefault("PLANNER_INTERVAL", 0)
	workers := envIntOrDefault("PLANNER_WORKERS", 2)
	grid := planner.DefaultGrid()
	grid.MaxAmbulances = envIntOrDefault("PLANNER_MAX_AMBULANCES", grid.MaxAmbulances)
	grid.MaxShelters = envIntOrDefault("PLANNER_MAX_SHELTERS", grid.MaxShelters)
	grid.Step = envIntOrDefault("PLANNER_STEP", grid.Step)

	if err := grid.Validate(); err != nil {
		slog.Error("invalid grid", "error", err)
		os.Exit(1)
	}

	slog.Info("reliefsim planner starting",
		"api_url", apiURL,
		"grid", fmt.Sprintf("%dx%d step %d", grid.MaxAmbulances, grid.MaxShelters, grid.Step),
		"interval_min", intervalMin,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := planner.NewObserver(apiURL)
	actor := planner.NewActor(apiURL, policyName)
	mem := planner.LoadMemory(memoryPath)

	slog.Info("waiting for reliefsim API...")
	if err := waitForAPI(ctx, apiURL); err != nil {
		slog.Error("API not ready", "error", err)
		os.Exit(1)
	}

	runCycle(ctx, observer, actor, mem, grid, workers)
	if intervalMin <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(intervalMin) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCycle(ctx, observer, actor, mem, grid, workers)
		case <-ctx.Done():
			slog.Info("shutting down")
			fmt.Println("Planner stopped.")
			return
		}
	}
}

// runCycle executes one observe → sweep → record cycle.
func runCycle(ctx context.Context, observer *planner.Observer, actor *planner.Actor, mem *planner.Memory, grid planner.Grid, workers int) {
	snap, err := observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}

	health := planner.Triage(snap)
	slog.Info("observation complete",
		"zones", snap.Status.Zones,
		"population", snap.Status.TotalPopulation,
		"shortfall", health.Shortfall,
		"shelter_bound", health.Limits[planner.ResourceShelter],
		"ambulance_bound", health.Limits[planner.ResourceAmbulance],
		"transport_bound", health.Limits[planner.ResourceTransport],
	)
	if health.Shortfall == 0 {
		slog.Info("every zone clears at baseline; no sweep needed")
		return
	}
	if !health.Boostable {
		slog.Warn("all short zones are transport bound; boosts cannot help")
		return
	}

	plan, err := planner.Sweep(ctx, actor, grid, workers)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return
	}
	best, ok := plan.Best()
	if !ok {
		slog.Warn("every grid point failed", "failed", plan.Failed)
		return
	}
	slog.Info("best boost",
		"extra_ambulances", best.ExtraAmbulances,
		"extra_shelters", best.ExtraShelters,
		"total_saved", best.TotalSaved,
		"gain", best.TotalSaved-plan.Baseline,
		"run_id", best.RunID,
	)

	if last, ok := mem.Last(); ok && last.Best.TotalSaved != best.TotalSaved {
		slog.Info("best outcome changed since last sweep", "previous", last.Best.TotalSaved, "current", best.TotalSaved)
	}
	mem.Record(planner.SweepRecord{
		At:            time.Now().UTC(),
		Zones:         snap.Status.Zones,
		Population:    snap.Status.TotalPopulation,
		BaselineSaved: plan.Baseline,
		Best:          best,
		Failed:        plan.Failed,
	})
	if err := mem.Save(); err != nil {
		slog.Error("memory save failed", "error", err)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds or five minutes pass.
func waitForAPI(ctx context.Context, apiURL string) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("reliefsim API is ready")
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("API at %s did not become ready within 5 minutes", apiURL)
		}
		slog.Info("reliefsim not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
