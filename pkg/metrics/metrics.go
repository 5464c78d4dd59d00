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

	// EventsPublished tracks channel events published, per event type.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_events_published_total",
			Help: "Channel events published",
		},
		[]string{"event"},
	)

	// PublishFailures tracks per-recipient publish failures. Failures are
	// isolated and never fail the originating write.
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_publish_failures_total",
			Help: "Per-recipient channel publish failures",
		},
		[]string{"event"},
	)

	// PresenceMembers tracks current presence-channel membership.
	PresenceMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presence_members",
			Help: "Members currently present on a presence channel",
		},
		[]string{"channel"},
	)

	// SeenMarks tracks seen-receipt resolutions by outcome.
	SeenMarks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seen_marks_total",
			Help: "Seen-receipt resolutions",
		},
		[]string{"outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"kind"},
	)

	// MessagesTotal tracks messages sent.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"kind"},
	)
)

// Seen-receipt outcomes.
const (
	SeenOutcomeMarked = "marked"
	SeenOutcomeNoop   = "noop"
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordPublish records one publish attempt for an event type.
func RecordPublish(event string, err error) {
	EventsPublished.WithLabelValues(event).Inc()
	if err != nil {
		PublishFailures.WithLabelValues(event).Inc()
	}
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
