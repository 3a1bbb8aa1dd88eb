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

	// WebhookPayloadsTotal tracks webhook payloads by outcome.
	WebhookPayloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_payloads_total",
			Help: "Webhook payloads processed",
		},
		[]string{"outcome"},
	)

	// MessageUpsertsTotal tracks message document upserts.
	MessageUpsertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_upserts_total",
			Help: "Message documents upserted",
		},
	)

	// StatusUpdatesTotal tracks status updates by outcome
	// (applied, stale, buffered, replayed, dropped).
	StatusUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_updates_total",
			Help: "Delivery status updates processed",
		},
		[]string{"outcome"},
	)

	// PendingStatusBuffered tracks statuses currently held for
	// not-yet-ingested messages.
	PendingStatusBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_status_buffered",
			Help: "Buffered status updates awaiting their message",
		},
	)

	// AggregationDuration tracks conversation aggregation read latency.
	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_aggregation_duration_seconds",
			Help:    "Conversation aggregation query duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)

	// EventsPublishedTotal tracks ingestion events published to the broker.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Ingestion events published",
		},
		[]string{"subject", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStatusUpdate records one status update outcome.
func RecordStatusUpdate(outcome string) {
	StatusUpdatesTotal.WithLabelValues(outcome).Inc()
}

// RecordPayload records one webhook payload outcome.
func RecordPayload(outcome string) {
	WebhookPayloadsTotal.WithLabelValues(outcome).Inc()
}
