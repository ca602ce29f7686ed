// Package metrics exposes Prometheus metrics for the frame loop and game.
//
// All recording methods are safe on a nil *Manager, so components can run
// without metrics wired.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame outcomes recorded by FrameProcessed.
const (
	FrameDetected = "detected"
	FrameReused   = "reused"
	FrameFailed   = "failed"
)

// Manager owns the game's collectors and the registry they live on.
type Manager struct {
	namespace     string
	detectBuckets []float64
	enabled       bool
	registry      *prometheus.Registry

	frames        *prometheus.CounterVec
	detectLatency prometheus.Histogram
	handsPerFrame prometheus.Histogram
	invalidHands  prometheus.Counter
	transitions   *prometheus.CounterVec
	rounds        prometheus.Counter
	target        prometheus.Gauge
	shown         prometheus.Gauge
}

// NewManager creates a Manager on a fresh registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:     "fingergame",
		detectBuckets: []float64{0.005, 0.01, 0.02, 0.035, 0.05, 0.075, 0.1, 0.2, 0.5},
		enabled:       true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.frames = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_total",
		Help:      "Frames processed by the game loop, by outcome",
	}, []string{"outcome"})

	m.detectLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "detect_duration_seconds",
		Help:      "Hand landmark detection latency",
		Buckets:   m.detectBuckets,
	})

	m.handsPerFrame = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "hands_per_frame",
		Help:      "Hands detected in a frame",
		Buckets:   []float64{0, 1, 2, 3, 4},
	})

	m.invalidHands = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "invalid_hands_total",
		Help:      "Hands skipped because their landmarks were malformed",
	})

	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "transitions_total",
		Help:      "Game state transitions, by trigger",
	}, []string{"trigger"})

	m.rounds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rounds_total",
		Help:      "Targets answered correctly",
	})

	m.target = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "target",
		Help:      "Number currently asked for",
	})

	m.shown = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "shown",
		Help:      "Fingers currently shown, -1 when unknown",
	})
}

func (m *Manager) on() bool {
	return m != nil && m.enabled
}

// FrameProcessed counts one loop iteration with the given outcome.
func (m *Manager) FrameProcessed(outcome string) {
	if !m.on() {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
}

// ObserveDetect records one detection call.
func (m *Manager) ObserveDetect(d time.Duration, hands int) {
	if !m.on() {
		return
	}
	m.detectLatency.Observe(d.Seconds())
	m.handsPerFrame.Observe(float64(hands))
}

// InvalidHands counts hands dropped for malformed landmarks.
func (m *Manager) InvalidHands(n int) {
	if !m.on() || n <= 0 {
		return
	}
	m.invalidHands.Add(float64(n))
}

// Transition counts a state change and, for matches, a completed round.
func (m *Manager) Transition(trigger string, round bool) {
	if !m.on() {
		return
	}
	m.transitions.WithLabelValues(trigger).Inc()
	if round {
		m.rounds.Inc()
	}
}

// SetGame publishes the current target and shown count.
func (m *Manager) SetGame(target int, shown int, known bool) {
	if !m.on() {
		return
	}
	m.target.Set(float64(target))
	if !known {
		shown = -1
	}
	m.shown.Set(float64(shown))
}

// Registry returns the registry backing the manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
