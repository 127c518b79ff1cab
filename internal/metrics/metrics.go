// Package metrics exposes Prometheus metrics for the localisation loop.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the loop metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Frames          *prometheus.CounterVec
	FramesSkipped   prometheus.Counter
	FrameDuration   prometheus.Histogram
	VisibleMarkers  prometheus.Gauge
	UnknownMarkers  prometheus.Counter
	Commands        *prometheus.CounterVec
	LogRows         *prometheus.CounterVec
	LogErrors       prometheus.Counter
	Broadcasts      prometheus.Counter
	BroadcastErrors prometheus.Counter
	Frequency       prometheus.Gauge
	State           prometheus.Gauge
}

// NewCollector registers loop metrics against the provided registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Frames, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arucoloc_frames_total",
		Help: "Frames processed, by state machine state.",
	}, []string{"state"}), "arucoloc_frames_total"); err != nil {
		return nil, err
	}

	if c.FramesSkipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arucoloc_frames_skipped_total",
		Help: "Iterations skipped because no frame was available.",
	}), "arucoloc_frames_skipped_total"); err != nil {
		return nil, err
	}

	if c.FrameDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arucoloc_frame_duration_seconds",
		Help:    "Time spent processing one frame after detection.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "arucoloc_frame_duration_seconds"); err != nil {
		return nil, err
	}

	if c.VisibleMarkers, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arucoloc_visible_markers",
		Help: "Markers detected in the most recent frame.",
	}), "arucoloc_visible_markers"); err != nil {
		return nil, err
	}

	if c.UnknownMarkers, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arucoloc_unknown_markers_total",
		Help: "Detected markers with no configured role.",
	}), "arucoloc_unknown_markers_total"); err != nil {
		return nil, err
	}

	if c.Commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arucoloc_commands_total",
		Help: "Operator commands applied, by command type.",
	}, []string{"command"}), "arucoloc_commands_total"); err != nil {
		return nil, err
	}

	if c.LogRows, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arucoloc_log_rows_total",
		Help: "Trajectory rows written, by platform.",
	}, []string{"platform"}), "arucoloc_log_rows_total"); err != nil {
		return nil, err
	}

	if c.LogErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arucoloc_log_errors_total",
		Help: "Trajectory rows that could not be written.",
	}), "arucoloc_log_errors_total"); err != nil {
		return nil, err
	}

	if c.Broadcasts, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arucoloc_broadcasts_total",
		Help: "Position batches sent.",
	}), "arucoloc_broadcasts_total"); err != nil {
		return nil, err
	}

	if c.BroadcastErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arucoloc_broadcast_errors_total",
		Help: "Position batches that failed to send.",
	}), "arucoloc_broadcast_errors_total"); err != nil {
		return nil, err
	}

	if c.Frequency, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arucoloc_broadcast_frequency_hz",
		Help: "Current broadcast frequency; -1 always, 0 never.",
	}), "arucoloc_broadcast_frequency_hz"); err != nil {
		return nil, err
	}

	if c.State, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arucoloc_state",
		Help: "State machine state: 0 calibrating, 1 running, 2 shutting down, 3 terminated.",
	}), "arucoloc_state"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler returns an HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame counts a processed frame and its duration.
func (c *Collector) ObserveFrame(state string, visible int, d time.Duration) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues(state).Inc()
	c.VisibleMarkers.Set(float64(visible))
	c.FrameDuration.Observe(d.Seconds())
}

// IncFramesSkipped counts an iteration without a frame.
func (c *Collector) IncFramesSkipped() {
	if c == nil {
		return
	}
	c.FramesSkipped.Inc()
}

// AddUnknownMarkers counts markers with no role.
func (c *Collector) AddUnknownMarkers(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.UnknownMarkers.Add(float64(n))
}

// IncCommand counts an applied command.
func (c *Collector) IncCommand(name string) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(name).Inc()
}

// IncLogRow counts a trajectory row for platform.
func (c *Collector) IncLogRow(platform string) {
	if c == nil {
		return
	}
	c.LogRows.WithLabelValues(platform).Inc()
}

// IncLogError counts a failed trajectory write.
func (c *Collector) IncLogError() {
	if c == nil {
		return
	}
	c.LogErrors.Inc()
}

// ObserveBroadcast counts a send attempt.
func (c *Collector) ObserveBroadcast(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.BroadcastErrors.Inc()
		return
	}
	c.Broadcasts.Inc()
}

// SetFrequency records the broadcast frequency.
func (c *Collector) SetFrequency(hz float64) {
	if c == nil {
		return
	}
	c.Frequency.Set(hz)
}

// SetState records the state machine state.
func (c *Collector) SetState(state int) {
	if c == nil {
		return
	}
	c.State.Set(float64(state))
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
