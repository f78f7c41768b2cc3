// Package health tracks per-backend load health and serves status reports.
package health

import (
	"sync"
	"time"
)

// Status is the health state of a backend or the whole system.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// BackendHealth contains health metrics for one backend kind.
type BackendHealth struct {
	Backend       string        `json:"backend"`
	Status        Status        `json:"status"`
	SuccessCount  int           `json:"success_count"`
	FailureCount  int           `json:"failure_count"`
	ErrorRate     float64       `json:"error_rate"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

type record struct {
	successCount  int
	failureCount  int
	totalLatency  time.Duration
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// Tracker records load/validation outcomes per backend. Purely
// observational: selection never consults it, so determinism holds.
type Tracker struct {
	mu       sync.RWMutex
	backends map[string]*record
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{backends: make(map[string]*record)}
}

// RecordSuccess records a successful load with its latency.
func (t *Tracker) RecordSuccess(backend string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.get(backend)
	r.successCount++
	r.totalLatency += latency
	r.lastSuccessAt = time.Now()
}

// RecordFailure records a failed load or validation.
func (t *Tracker) RecordFailure(backend string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.get(backend)
	r.failureCount++
	r.lastFailureAt = time.Now()
}

// Report returns a snapshot of every tracked backend.
func (t *Tracker) Report() map[string]BackendHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	report := make(map[string]BackendHealth, len(t.backends))
	for name, r := range t.backends {
		total := r.successCount + r.failureCount
		h := BackendHealth{
			Backend:       name,
			SuccessCount:  r.successCount,
			FailureCount:  r.failureCount,
			LastSuccessAt: r.lastSuccessAt,
			LastFailureAt: r.lastFailureAt,
		}
		if total > 0 {
			h.ErrorRate = float64(r.failureCount) / float64(total)
		}
		if r.successCount > 0 {
			h.AvgLatency = r.totalLatency / time.Duration(r.successCount)
		}
		h.Status = statusFor(h.ErrorRate, total)
		report[name] = h
	}
	return report
}

// Overall aggregates the per-backend statuses; worst case wins.
func (t *Tracker) Overall() Status {
	status := StatusHealthy
	for _, h := range t.Report() {
		if h.Status == StatusCritical {
			return StatusCritical
		}
		if h.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}

func (t *Tracker) get(backend string) *record {
	r, ok := t.backends[backend]
	if !ok {
		r = &record{}
		t.backends[backend] = r
	}
	return r
}

func statusFor(errorRate float64, total int) Status {
	if total == 0 {
		return StatusHealthy
	}
	switch {
	case errorRate > 0.5:
		return StatusCritical
	case errorRate > 0.2:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
