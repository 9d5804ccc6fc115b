// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhookEvents counts inbound webhook deliveries by outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesTotal tracks persisted messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"sender", "kind"},
	)

	// ProviderSends tracks outbound provider calls.
	ProviderSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_sends_total",
			Help: "Outbound provider messages by payload type and status",
		},
		[]string{"type", "status"},
	)

	// MediaDownloads tracks inbound media fetches.
	MediaDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_downloads_total",
			Help: "Inbound media downloads by kind and status",
		},
		[]string{"kind", "status"},
	)

	// MediaBytes tracks stored media bytes.
	MediaBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_bytes_total",
			Help: "Bytes of inbound media stored",
		},
	)

	// FlowTransitions tracks engine outcomes.
	FlowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Flow engine transitions by node kind and result",
		},
		[]string{"node_type", "result"},
	)

	// RealtimePublishes tracks realtime event delivery per sink.
	RealtimePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_publishes_total",
			Help: "Realtime events published by sink and status",
		},
		[]string{"sink", "status"},
	)

	// WebSocketConnectionsActive tracks connected operator clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active websocket connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSend records an outbound provider call.
func RecordSend(payloadType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ProviderSends.WithLabelValues(payloadType, status).Inc()
}

// IncrementWebSocketConnections increments the active websocket connection count.
func IncrementWebSocketConnections() {
	WebSocketConnectionsActive.Inc()
}

// DecrementWebSocketConnections decrements the active websocket connection count.
func DecrementWebSocketConnections() {
	WebSocketConnectionsActive.Dec()
}
