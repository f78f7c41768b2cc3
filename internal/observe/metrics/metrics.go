package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SelectionsTotal tracks completed selections per chosen backend.
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accelhost_selections_total",
			Help: "Total number of completed backend selections",
		},
		[]string{"backend"},
	)

	// LoadFailuresTotal tracks loader failures per backend and stage.
	LoadFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accelhost_load_failures_total",
			Help: "Total number of backend load/validation failures",
		},
		[]string{"backend", "stage"},
	)

	// FallbackDepth observes how far down the fallback chain a workflow went.
	FallbackDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accelhost_fallback_depth",
			Help:    "Number of fallback candidates tried before success",
			Buckets: []float64{0, 1, 2, 3},
		},
		[]string{"platform"},
	)

	// RecoveryAttemptsTotal tracks strategy executions per strategy name.
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accelhost_recovery_attempts_total",
			Help: "Total number of recovery strategy attempts",
		},
		[]string{"strategy"},
	)

	// ValidationLatency tracks smoke-call latency per backend.
	ValidationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accelhost_validation_latency_seconds",
			Help:    "Backend validation call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// ActiveBackend publishes the currently loaded backend kind (1 = active).
	ActiveBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "accelhost_active_backend",
			Help: "Currently active backend (1 = active)",
		},
		[]string{"backend"},
	)
)
