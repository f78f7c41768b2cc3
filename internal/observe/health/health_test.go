package health

import (
	"testing"
	"time"
)

func TestTrackerStatuses(t *testing.T) {
	tracker := NewTracker()

	for i := 0; i < 9; i++ {
		tracker.RecordSuccess("cuda", 10*time.Millisecond)
	}
	tracker.RecordFailure("cuda")

	h := tracker.Report()["cuda"]
	if h.Status != StatusHealthy {
		t.Errorf("10%% error rate should be healthy, got %s", h.Status)
	}
	if h.AvgLatency != 10*time.Millisecond {
		t.Errorf("avg latency = %s", h.AvgLatency)
	}

	tracker.RecordFailure("openvino")
	tracker.RecordFailure("openvino")
	tracker.RecordSuccess("openvino", time.Millisecond)
	if got := tracker.Report()["openvino"].Status; got != StatusCritical {
		t.Errorf("66%% error rate should be critical, got %s", got)
	}

	if tracker.Overall() != StatusCritical {
		t.Errorf("overall must be worst case, got %s", tracker.Overall())
	}
}

func TestTrackerEmptyIsHealthy(t *testing.T) {
	tracker := NewTracker()
	if tracker.Overall() != StatusHealthy {
		t.Errorf("empty tracker should report healthy, got %s", tracker.Overall())
	}
}

func TestTrackerDegraded(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordSuccess("cpu", time.Millisecond)
	tracker.RecordSuccess("cpu", time.Millisecond)
	tracker.RecordFailure("cpu")

	if got := tracker.Report()["cpu"].Status; got != StatusDegraded {
		t.Errorf("33%% error rate should be degraded, got %s", got)
	}
}
