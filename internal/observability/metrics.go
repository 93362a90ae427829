// Package observability exposes Prometheus metrics for simulation runs and
// predictor calls.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	simulationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reliefsim",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Simulation runs by policy and outcome.",
		},
		[]string{"policy", "status", "reason"},
	)
	simulationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reliefsim",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a simulation run in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"policy", "status"},
	)
	livesSaved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reliefsim",
			Subsystem: "engine",
			Name:      "lives_saved",
			Help:      "Lives saved per completed run.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 10),
		},
		[]string{"policy"},
	)
	predictorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reliefsim",
			Subsystem: "predictor",
			Name:      "requests_total",
			Help:      "External predictor calls.",
		},
		[]string{"status", "success"},
	)
	predictorDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reliefsim",
			Subsystem: "predictor",
			Name:      "request_duration_seconds",
			Help:      "External predictor call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(simulationRuns, simulationDuration, livesSaved, predictorRequests, predictorDuration)
	})
}

// RecordRun counts a finished run. reason is empty for completed runs.
func RecordRun(policy string, completed bool, reason string, saved int64, duration time.Duration) {
	RegisterMetrics()
	status := "completed"
	if !completed {
		status = "failed"
	}
	simulationRuns.WithLabelValues(policy, status, reason).Inc()
	simulationDuration.WithLabelValues(policy, status).Observe(duration.Seconds())
	if completed {
		livesSaved.WithLabelValues(policy).Observe(float64(saved))
	}
}

// RecordPredictorCall counts one predictor request. status is the HTTP code,
// or 0 when the request never got a response.
func RecordPredictorCall(status int, duration time.Duration, success bool) {
	RegisterMetrics()
	predictorRequests.WithLabelValues(strconv.Itoa(status), strconv.FormatBool(success)).Inc()
	predictorDuration.Observe(duration.Seconds())
}
