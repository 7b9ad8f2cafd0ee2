// Package metrics exports session lifecycle events as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systmms/sanbridge/internal/session"
)

// Namespace prefixes every metric name.
const Namespace = "sanbridge"

// Metrics is a session.Observer that records lifecycle events.
type Metrics struct {
	events   *prometheus.CounterVec
	statuses *prometheus.CounterVec
	duration *prometheus.HistogramVec
	open     *prometheus.GaugeVec
}

// New registers the session metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "session_events_total",
				Help:      "Total number of session lifecycle events",
			},
			[]string{"array", "protocol", "kind", "result"},
		),
		statuses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "responses_total",
				Help:      "Total number of array responses by HTTP status",
			},
			[]string{"array", "protocol", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of session steps in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
			},
			[]string{"array", "protocol", "kind"},
		),
		open: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "session_open",
				Help:      "Whether a session with the array is open (1=open, 0=closed)",
			},
			[]string{"array", "protocol"},
		),
	}
}

// Observe implements session.Observer.
func (m *Metrics) Observe(e session.Event) {
	result := "ok"
	if !e.Succeeded() {
		result = "error"
	}
	m.events.WithLabelValues(e.Array, e.Protocol, string(e.Kind), result).Inc()

	if e.Duration > 0 {
		m.duration.WithLabelValues(e.Array, e.Protocol, string(e.Kind)).Observe(e.Duration.Seconds())
	}
	if e.Status > 0 {
		m.statuses.WithLabelValues(e.Array, e.Protocol, strconv.Itoa(e.Status)).Inc()
	}

	switch e.Kind {
	case session.EventLogin, session.EventRefresh:
		if e.Succeeded() {
			m.open.WithLabelValues(e.Array, e.Protocol).Set(1)
		}
	case session.EventLogout:
		m.open.WithLabelValues(e.Array, e.Protocol).Set(0)
	}
}
