package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "whiteboard"

// Metrics holds the Prometheus collectors for the real-time path.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	EventsReceived     *prometheus.CounterVec
	ProtocolViolations *prometheus.CounterVec
	EventsPersisted    prometheus.Counter
	AppendFailures     prometheus.Counter
	Deliveries         *prometheus.CounterVec
	AppendDuration     prometheus.Histogram
	RelayMessages      *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Number of connected WebSocket sessions",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_received_total",
			Help:      "Inbound session events by name",
		}, []string{"event"}),
		ProtocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_violations_total",
			Help:      "Malformed inbound events that were ignored",
		}, []string{"event"}),
		EventsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "drawing_events_persisted_total",
			Help:      "Drawing events durably appended",
		}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "drawing_event_append_failures_total",
			Help:      "Drawing events rejected because the append failed",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient pushes by result",
		}, []string{"result"}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "append_duration_seconds",
			Help:      "Event store append latency",
			Buckets:   prometheus.DefBuckets,
		}),
		RelayMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "relay_messages_total",
			Help:      "Cross-instance relay traffic by direction",
		}, []string{"direction"}),
	}
}
