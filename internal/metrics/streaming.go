package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Streaming holds the Prometheus instrumentation for listing sessions.
// All vectors are labeled by request kind ("keys" or "buckets").
type Streaming struct {
	ActiveSessions  prometheus.Gauge
	SessionsStarted *prometheus.CounterVec
	BatchesEmitted  *prometheus.CounterVec
	ItemsEmitted    *prometheus.CounterVec
	AcksIssued      prometheus.Counter
	TerminalErrors  *prometheus.CounterVec
	StaleDropped    prometheus.Counter
}

// NewStreaming creates the streaming metric set and registers it with reg.
// Pass prometheus.DefaultRegisterer for the server, or a private registry in
// tests.
func NewStreaming(reg prometheus.Registerer) *Streaming {
	m := &Streaming{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "active_sessions",
			Help:      "Number of listing sessions currently streaming.",
		}),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "sessions_started_total",
			Help:      "Listing sessions started, by request kind.",
		}, []string{"kind"}),
		BatchesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "batches_emitted_total",
			Help:      "Non-empty result batches forwarded to a transport.",
		}, []string{"kind"}),
		ItemsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "items_emitted_total",
			Help:      "Individual keys or bucket names forwarded to a transport.",
		}, []string{"kind"}),
		AcksIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "acks_issued_total",
			Help:      "Flow-control acknowledgements returned to the enumerator.",
		}),
		TerminalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "terminal_errors_total",
			Help:      "Sessions closed by an enumerator error.",
		}, []string{"kind"}),
		StaleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "listing",
			Name:      "stale_messages_dropped_total",
			Help:      "Messages dropped because their token matched no open session.",
		}),
	}

	reg.MustRegister(
		m.ActiveSessions,
		m.SessionsStarted,
		m.BatchesEmitted,
		m.ItemsEmitted,
		m.AcksIssued,
		m.TerminalErrors,
		m.StaleDropped,
	)

	return m
}
