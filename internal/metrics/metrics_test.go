package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveFrame("RUNNING", 3, 2*time.Millisecond)
	c.ObserveFrame("RUNNING", 1, time.Millisecond)
	c.IncFramesSkipped()
	c.AddUnknownMarkers(2)
	c.AddUnknownMarkers(0)
	c.IncCommand("Shutdown")
	c.IncLogRow("7")
	c.IncLogError()
	c.ObserveBroadcast(nil)
	c.ObserveBroadcast(errors.New("unreachable"))
	c.SetFrequency(2)
	c.SetState(1)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"frames", testutil.ToFloat64(c.Frames.WithLabelValues("RUNNING")), 2},
		{"visible", testutil.ToFloat64(c.VisibleMarkers), 1},
		{"skipped", testutil.ToFloat64(c.FramesSkipped), 1},
		{"unknown", testutil.ToFloat64(c.UnknownMarkers), 2},
		{"commands", testutil.ToFloat64(c.Commands.WithLabelValues("Shutdown")), 1},
		{"log rows", testutil.ToFloat64(c.LogRows.WithLabelValues("7")), 1},
		{"log errors", testutil.ToFloat64(c.LogErrors), 1},
		{"broadcasts", testutil.ToFloat64(c.Broadcasts), 1},
		{"broadcast errors", testutil.ToFloat64(c.BroadcastErrors), 1},
		{"frequency", testutil.ToFloat64(c.Frequency), 2},
		{"state", testutil.ToFloat64(c.State), 1},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollectorReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	second.IncFramesSkipped()
	if got := testutil.ToFloat64(first.FramesSkipped); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveFrame("RUNNING", 1, time.Millisecond)
	c.IncFramesSkipped()
	c.AddUnknownMarkers(1)
	c.IncCommand("None")
	c.IncLogRow("1")
	c.IncLogError()
	c.ObserveBroadcast(nil)
	c.SetFrequency(1)
	c.SetState(0)
	if c.Gatherer() != nil {
		t.Error("nil collector should have nil gatherer")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.SetFrequency(5)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, "arucoloc_broadcast_frequency_hz 5") {
		t.Errorf("metrics output missing frequency gauge:\n%s", body)
	}
}
