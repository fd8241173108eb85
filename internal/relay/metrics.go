package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "drc"

// Metrics holds the relay's Prometheus collectors. Each Server registers its
// own set on a private registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	connected      prometheus.Gauge
	framesReceived prometheus.Counter
	relayed        prometheus.Counter
	deliveries     prometheus.Counter
	discarded      prometheus.Counter
	acceptErrors   prometheus.Counter
	disconnects    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_clients",
			Help:      "Number of clients currently registered with the relay.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from clients.",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_relayed_total",
			Help:      "Messages fanned out to other clients.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_delivered_total",
			Help:      "Frames written to recipients.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_discarded_total",
			Help:      "Messages dropped because tag or body was empty.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "accept_errors_total",
			Help:      "Transient failures accepting connections.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Clients removed from the relay, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.connected,
		m.framesReceived,
		m.relayed,
		m.deliveries,
		m.discarded,
		m.acceptErrors,
		m.disconnects,
		collectors.NewGoCollector(),
	)
	return m
}

// Gatherer exposes the registry for an HTTP handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
