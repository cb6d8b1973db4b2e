package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/chatgate/pkg/reply"
)

// Frame outcomes recorded by Metrics.
const (
	frameReplied   = "replied"
	frameMalformed = "malformed"
	frameInvalid   = "invalid"
	frameFailed    = "failed"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	frames        *prometheus.CounterVec
	replies       *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	sendErrors    prometheus.Counter
	uploads       *prometheus.CounterVec
	cycleSeconds  prometheus.Histogram
}

// NewMetrics registers the collectors. connections is sampled on scrape.
func NewMetrics(connections func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Name:      "frames_total",
			Help:      "Inbound frames by outcome.",
		}, []string{"outcome"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Name:      "replies_total",
			Help:      "Replies sent by source.",
		}, []string{"source"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Name:      "storage_errors_total",
			Help:      "Failed store calls by operation.",
		}, []string{"op"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatgate",
			Name:      "send_errors_total",
			Help:      "Outbound frames that could not be written.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatgate",
			Name:      "uploads_total",
			Help:      "Upload requests by result.",
		}, []string{"result"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatgate",
			Name:      "cycle_duration_seconds",
			Help:      "Time from frame receipt to reply sent.",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 15, 30, 60, 120},
		}),
	}

	m.registry.MustRegister(
		m.frames,
		m.replies,
		m.storageErrors,
		m.sendErrors,
		m.uploads,
		m.cycleSeconds,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chatgate",
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}, func() float64 { return float64(connections()) }),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) frame(outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
}

func (m *Metrics) reply(source reply.Source, seconds float64) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(string(source)).Inc()
	m.cycleSeconds.Observe(seconds)
}

func (m *Metrics) storageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) sendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
