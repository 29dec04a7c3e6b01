// Package metrics exposes prometheus collectors for connections, messages
// and discovery traffic.
//
// The collectors live on a private registry so that importing this package
// never pollutes prometheus.DefaultRegisterer. Serve it with Handler or
// NewServer.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inetwork"

// Metrics contains every collector recorded by the transport, discovery and
// pub/sub packages
type Metrics struct {
	ConnectionsActive  *prometheus.GaugeVec
	ConnectionsTotal   *prometheus.CounterVec
	MessagesSent       *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	BytesSent          prometheus.Counter
	BytesReceived      prometheus.Counter
	SendErrors         prometheus.Counter
	FanoutDropped      prometheus.Counter
	Subscriptions      prometheus.Gauge
	DiscoveryLookups   *prometheus.CounterVec
	DiscoveryResponses *prometheus.CounterVec
	TapClients         prometheus.Gauge
}

// NewMetrics creates the collectors without registering them
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tcp",
				Name:      "connections_active",
				Help:      "Currently running connections",
			},
			[]string{"role"},
		),

		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tcp",
				Name:      "connections_total",
				Help:      "Connections started since process start",
			},
			[]string{"role"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Messages written to connections",
			},
			[]string{"kind"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Messages decoded from connections",
			},
			[]string{"kind"},
		),

		BytesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_bytes_total",
				Help:      "Framed bytes written to connections",
			},
		),

		BytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_bytes_total",
				Help:      "Framed bytes read from connections",
			},
		),

		SendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "send_errors_total",
				Help:      "Send failures that stopped a connection",
			},
		),

		FanoutDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pubsub",
				Name:      "fanout_dropped_total",
				Help:      "Per-subscriber deliveries skipped because no template matched",
			},
		),

		Subscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pubsub",
				Name:      "subscriptions",
				Help:      "Subscriptions currently attached to publishers",
			},
		),

		DiscoveryLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "lookups_total",
				Help:      "Lookups sent (role=requester) or answered (role=responder)",
			},
			[]string{"role"},
		),

		DiscoveryResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "responses_total",
				Help:      "Responses accepted or ignored by requesters",
			},
			[]string{"status"},
		),

		TapClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tap",
				Name:      "clients",
				Help:      "WebSocket clients attached to the message tap",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.MessagesSent,
		m.MessagesReceived,
		m.BytesSent,
		m.BytesReceived,
		m.SendErrors,
		m.FanoutDropped,
		m.Subscriptions,
		m.DiscoveryLookups,
		m.DiscoveryResponses,
		m.TapClients,
	}
}

var (
	once     sync.Once
	registry *prometheus.Registry
	core     *Metrics
)

func initialize() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		core = NewMetrics()
		registry.MustRegister(core.collectors()...)
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Core returns the process-wide collectors
func Core() *Metrics {
	initialize()
	return core
}

// Registry returns the registry the core collectors are registered on
func Registry() *prometheus.Registry {
	initialize()
	return registry
}

// Handler returns an HTTP handler exposing the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func kind(internal bool) string {
	if internal {
		return "internal"
	}
	return "application"
}

// ConnectionStarted records a connection entering the running state
func ConnectionStarted(role string) {
	m := Core()
	m.ConnectionsActive.WithLabelValues(role).Inc()
	m.ConnectionsTotal.WithLabelValues(role).Inc()
}

// ConnectionStopped records a running connection stopping
func ConnectionStopped(role string) {
	Core().ConnectionsActive.WithLabelValues(role).Dec()
}

// MessageSent records one framed message written
func MessageSent(internal bool, size int) {
	m := Core()
	m.MessagesSent.WithLabelValues(kind(internal)).Inc()
	m.BytesSent.Add(float64(size))
}

// MessageReceived records one framed message read
func MessageReceived(internal bool, size int) {
	m := Core()
	m.MessagesReceived.WithLabelValues(kind(internal)).Inc()
	m.BytesReceived.Add(float64(size))
}

// SendFailed records a send that stopped its connection
func SendFailed() {
	Core().SendErrors.Inc()
}

// FanoutDropped records a message not delivered to one subscriber
func FanoutDropped() {
	Core().FanoutDropped.Inc()
}

// SubscriptionAdded and SubscriptionRemoved track attached subscriptions
func SubscriptionAdded() {
	Core().Subscriptions.Inc()
}

func SubscriptionRemoved() {
	Core().Subscriptions.Dec()
}

// DiscoveryLookup records a lookup sent or answered
func DiscoveryLookup(role string) {
	Core().DiscoveryLookups.WithLabelValues(role).Inc()
}

// DiscoveryResponse records a response by status ("accepted", "ignored")
func DiscoveryResponse(status string) {
	Core().DiscoveryResponses.WithLabelValues(status).Inc()
}

// TapClients records the number of attached tap clients
func TapClients(n int) {
	Core().TapClients.Set(float64(n))
}
