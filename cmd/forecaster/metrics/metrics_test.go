package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Phantawat/BreatheEasy/pkg/forecast"
)

var _ forecast.Recorder = (*Metrics)(nil)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordError("forecast", "insufficient_data")
	m.RecordError("forecast", "insufficient_data")
	m.ObserveCache("outdoor", true)
	m.ObserveCache("outdoor", false)
	m.ObserveCache("outdoor", false)
	m.ObserveRequest("GET /forecast/{variant}", http.StatusOK, 20*time.Millisecond)
	m.RecordArtifact("outdoor")

	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("forecast", "insufficient_data")); got != 2 {
		t.Errorf("expected 2 errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("outdoor", "miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("outdoor", "hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /forecast/{variant}", "200")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
	if got := testutil.ToFloat64(m.ArtifactsSaved.WithLabelValues("outdoor")); got != 1 {
		t.Errorf("expected 1 artifact, got %v", got)
	}
}

func TestMetrics_ObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveStage("outdoor", "rollout", 0.25)
	m.ObserveStage("outdoor", "source", 0.01)

	if got := testutil.CollectAndCount(m.StageSeconds); got != 2 {
		t.Errorf("expected 2 stage series, got %d", got)
	}
}

func TestNew_SeparateRegistries(t *testing.T) {
	// registering twice on fresh registries must not panic
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}
