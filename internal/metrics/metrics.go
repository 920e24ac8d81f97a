package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message metrics
	MessagesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_messages_created_total",
			Help: "Total number of messages accepted for delivery",
		},
		[]string{"event_type"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_delivery_attempts_total",
			Help: "Total number of delivery attempts",
		},
		[]string{"status"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhooks_delivery_duration_seconds",
			Help:    "Delivery attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"status"},
	)

	DeliveryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhooks_delivery_retries_total",
			Help: "Total number of delivery retries scheduled",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webhooks_queue_depth",
			Help: "Current number of pending dispatch tasks",
		},
		[]string{"lane"},
	)

	// Dispatcher metrics
	ActiveDispatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhooks_active_dispatchers",
			Help: "Current number of active dispatcher processes",
		},
	)

	// DLQ metrics
	DLQSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhooks_dlq_size",
			Help: "Current number of exhausted deliveries in the dead letter queue",
		},
	)

	DLQAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webhooks_dlq_added_total",
			Help: "Total number of deliveries moved to the dead letter queue",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhooks_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhooks_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordMessageCreated records an accepted message.
func RecordMessageCreated(eventType string) {
	MessagesCreated.WithLabelValues(eventType).Inc()
}

// RecordAttempt records a delivery attempt and its duration.
func RecordAttempt(status string, duration float64) {
	AttemptsTotal.WithLabelValues(status).Inc()
	AttemptDuration.WithLabelValues(status).Observe(duration)
}

// RecordRetryScheduled records a scheduled delivery retry.
func RecordRetryScheduled() {
	DeliveryRetries.Inc()
}

// UpdateQueueDepth updates the queue depth gauge for a lane.
func UpdateQueueDepth(lane string, depth float64) {
	QueueDepth.WithLabelValues(lane).Set(depth)
}

// SetActiveDispatchers sets the active dispatchers gauge.
func SetActiveDispatchers(count float64) {
	ActiveDispatchers.Set(count)
}

// SetDLQSize sets the DLQ size gauge.
func SetDLQSize(size float64) {
	DLQSize.Set(size)
}

// IncrementDLQAdded increments the DLQ added counter.
func IncrementDLQAdded() {
	DLQAdded.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
