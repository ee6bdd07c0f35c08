package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ebantek_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// RequestsCreated counts service requests created by service type.
	RequestsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_requests_created_total",
		Help: "Total number of service requests created",
	}, []string{"service_type"})

	// StatusTransitions counts request status transitions by origin and target.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_status_transitions_total",
		Help: "Total number of request status transitions",
	}, []string{"from", "to"})

	// ValidationFailures counts submission validation failures by service type.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_validation_failures_total",
		Help: "Total number of submission validation failures",
	}, []string{"service_type"})

	// FileUploads counts stored uploads by mime type.
	FileUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_file_uploads_total",
		Help: "Total number of stored file uploads",
	}, []string{"mime_type"})

	// NotificationConnections is the gauge of active notification WebSocket connections.
	NotificationConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ebantek_notification_connections",
		Help: "Number of active notification WebSocket connections",
	})

	// NotificationEvents counts notification events fanned out by type.
	NotificationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_notification_events_total",
		Help: "Total notification events by type",
	}, []string{"event_type"})

	// NotificationDrops counts messages dropped on slow or closed connections.
	NotificationDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ebantek_notification_drops_total",
		Help: "Total notification messages dropped due to backpressure",
	}, []string{"reason"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// RecordStatusTransition increments the transition counter.
func RecordStatusTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordNotificationEvent increments the notification events counter.
func RecordNotificationEvent(eventType string) {
	NotificationEvents.WithLabelValues(eventType).Inc()
}
