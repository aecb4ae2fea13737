// Package metrics exposes detection loop counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame processing counters
	FramesProcessed atomic.Uint64
	ReadFailures    atomic.Uint64
	RenderDropped   atomic.Uint64

	// Fused eye states
	BothClosed    atomic.Uint64
	NotBothClosed atomic.Uint64
	Unknown       atomic.Uint64

	// Alarm
	AlarmTicks    atomic.Uint64
	SoundRequests atomic.Uint64

	// Sessions
	SessionsStarted atomic.Uint64
	SessionsEnded   atomic.Uint64

	// Current values
	Score        atomic.Int64
	SessionState atomic.Int32

	processLatency prometheus.Summary
	registry       *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		processLatency: prometheus.NewSummary(prometheus.SummaryOpts{
			Name:       "drowsy_frame_process_seconds",
			Help:       "Per-frame classification and scoring latency",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("drowsy_frames_processed_total", "Total frames classified", &m.FramesProcessed)
	m.counter("drowsy_frame_read_failures_total", "Total frame reads that ended a session", &m.ReadFailures)
	m.counter("drowsy_render_dropped_total", "Render requests dropped because the display lagged", &m.RenderDropped)
	m.counter("drowsy_fused_both_closed_total", "Frames with both eyes closed", &m.BothClosed)
	m.counter("drowsy_fused_not_both_closed_total", "Frames with at least one eye open", &m.NotBothClosed)
	m.counter("drowsy_fused_unknown_total", "Frames where eyes were not observed", &m.Unknown)
	m.counter("drowsy_alarm_ticks_total", "Iterations with score above threshold", &m.AlarmTicks)
	m.counter("drowsy_sound_requests_total", "Alarm sound playback requests", &m.SoundRequests)
	m.counter("drowsy_sessions_started_total", "Detection sessions started", &m.SessionsStarted)
	m.counter("drowsy_sessions_ended_total", "Detection sessions ended", &m.SessionsEnded)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_score",
			Help: "Current drowsiness score",
		},
		func() float64 { return float64(m.Score.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drowsy_session_state",
			Help: "Session state (0=idle, 1=starting, 2=running, 3=stopping)",
		},
		func() float64 { return float64(m.SessionState.Load()) },
	))

	m.registry.MustRegister(m.processLatency)
}

// ObserveFused counts one fused frame state.
func (m *Metrics) ObserveFused(state domain.FusedState) {
	m.FramesProcessed.Add(1)
	switch state {
	case domain.FusedBothClosed:
		m.BothClosed.Add(1)
	case domain.FusedNotBothClosed:
		m.NotBothClosed.Add(1)
	default:
		m.Unknown.Add(1)
	}
}

// ObserveProcessLatency records how long one iteration took to classify and score.
func (m *Metrics) ObserveProcessLatency(d time.Duration) {
	m.processLatency.Observe(d.Seconds())
}

// SetSessionState publishes the controller state.
func (m *Metrics) SetSessionState(state domain.SessionState) {
	m.SessionState.Store(int32(state))
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics HTTP server until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
