package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWith_FreshRegistry(t *testing.T) {
	// Two instances on separate registries must not collide.
	m1 := NewMetricsWith(prometheus.NewRegistry(), "")
	m2 := NewMetricsWith(prometheus.NewRegistry(), "")

	m1.ScansCompleted.Inc()
	if got := testutil.ToFloat64(m1.ScansCompleted); got != 1 {
		t.Errorf("Expected 1 completed scan, got %v", got)
	}
	if got := testutil.ToFloat64(m2.ScansCompleted); got != 0 {
		t.Errorf("Second instance must start at zero, got %v", got)
	}
}

func TestRecordChainHealth(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")

	m.RecordChainHealth("ethereum", true)
	if got := testutil.ToFloat64(m.ChainHealthy.WithLabelValues("ethereum")); got != 1 {
		t.Errorf("Expected healthy gauge 1, got %v", got)
	}

	m.RecordChainHealth("ethereum", false)
	if got := testutil.ToFloat64(m.ChainHealthy.WithLabelValues("ethereum")); got != 0 {
		t.Errorf("Expected healthy gauge 0, got %v", got)
	}
}

func TestRecordQueueStats(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")

	m.RecordQueueStats(5, 2, 3)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("ready")); got != 5 {
		t.Errorf("Expected ready depth 5, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("delayed")); got != 2 {
		t.Errorf("Expected delayed depth 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.ScansInFlight); got != 3 {
		t.Errorf("Expected 3 in flight, got %v", got)
	}
}
