package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the alert engine
type PrometheusMetrics struct {
	// Alert lifecycle metrics
	AlertsCreatedTotal   *prometheus.CounterVec
	AlertsResolvedTotal  *prometheus.CounterVec
	AlertsDismissedTotal prometheus.Counter
	ActiveAlerts         *prometheus.GaugeVec
	AlertResolutionTime  *prometheus.HistogramVec

	// Detection metrics
	DetectionsEvaluatedTotal prometheus.Counter
	DetectionEvalDuration    prometheus.Histogram

	// Escalation metrics
	EscalationsExecutedTotal  *prometheus.CounterVec
	EscalationsCancelledTotal prometheus.Counter
	EscalationTimersActive    prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// Actuator metrics
	ActuatorActionsTotal   *prometheus.CounterVec
	ActuatorActionDuration *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Alert lifecycle metrics
		AlertsCreatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_alerts_created_total",
				Help: "Total number of alerts created",
			},
			[]string{"type", "severity"},
		),

		AlertsResolvedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_alerts_resolved_total",
				Help: "Total number of alerts resolved",
			},
			[]string{"type", "severity"},
		),

		AlertsDismissedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_engine_alerts_dismissed_total",
				Help: "Total number of alerts dismissed",
			},
		),

		ActiveAlerts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alert_engine_active_alerts",
				Help: "Number of currently active alerts",
			},
			[]string{"severity"},
		),

		AlertResolutionTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_engine_alert_resolution_seconds",
				Help:    "Time from alert creation to resolution",
				Buckets: []float64{30, 60, 300, 900, 1800, 3600, 14400, 86400},
			},
			[]string{"severity"},
		),

		// Detection metrics
		DetectionsEvaluatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_engine_detections_evaluated_total",
				Help: "Total number of detection payloads evaluated",
			},
		),

		DetectionEvalDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alert_engine_detection_eval_duration_seconds",
				Help:    "Time spent evaluating detection payloads",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Escalation metrics
		EscalationsExecutedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_escalations_executed_total",
				Help: "Total number of escalation steps executed",
			},
			[]string{"level"},
		),

		EscalationsCancelledTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_engine_escalations_cancelled_total",
				Help: "Total number of escalation timers cancelled",
			},
		),

		EscalationTimersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "alert_engine_escalation_timers_active",
				Help: "Number of currently armed escalation timers",
			},
		),

		// Notification metrics
		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel"},
		),

		NotificationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_engine_notification_duration_seconds",
				Help:    "Duration of notification delivery",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		// Actuator metrics
		ActuatorActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_actuator_actions_total",
				Help: "Total number of autonomous actions executed",
			},
			[]string{"action_type", "status"},
		),

		ActuatorActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_engine_actuator_action_duration_seconds",
				Help:    "Duration of autonomous action execution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action_type"},
		),

		// Storage metrics
		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_engine_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		// API metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_engine_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_engine_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Application health metrics
		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "alert_engine_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alert_engine_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "alert_engine_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "alert_engine_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordAlertCreated records a created alert
func (m *PrometheusMetrics) RecordAlertCreated(alertType, severity string) {
	m.AlertsCreatedTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordAlertResolved records a resolved alert and its time to resolution
func (m *PrometheusMetrics) RecordAlertResolved(alertType, severity string, resolutionTime time.Duration) {
	m.AlertsResolvedTotal.WithLabelValues(alertType, severity).Inc()
	m.AlertResolutionTime.WithLabelValues(severity).Observe(resolutionTime.Seconds())
}

// RecordAlertDismissed records a dismissed alert
func (m *PrometheusMetrics) RecordAlertDismissed() {
	m.AlertsDismissedTotal.Inc()
}

// UpdateActiveAlerts updates the active alert gauge for a severity
func (m *PrometheusMetrics) UpdateActiveAlerts(severity string, count int) {
	m.ActiveAlerts.WithLabelValues(severity).Set(float64(count))
}

// RecordDetectionEvaluated records an evaluated detection payload
func (m *PrometheusMetrics) RecordDetectionEvaluated(duration time.Duration) {
	m.DetectionsEvaluatedTotal.Inc()
	m.DetectionEvalDuration.Observe(duration.Seconds())
}

// RecordEscalationExecuted records an executed escalation step
func (m *PrometheusMetrics) RecordEscalationExecuted(level string) {
	m.EscalationsExecutedTotal.WithLabelValues(level).Inc()
}

// RecordEscalationCancelled records a cancelled escalation timer
func (m *PrometheusMetrics) RecordEscalationCancelled() {
	m.EscalationsCancelledTotal.Inc()
}

// UpdateEscalationTimers updates the armed-timer gauge
func (m *PrometheusMetrics) UpdateEscalationTimers(count int) {
	m.EscalationTimersActive.Set(float64(count))
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel string) {
	m.NotificationFailuresTotal.WithLabelValues(channel).Inc()
}

// RecordActuatorAction records an executed autonomous action
func (m *PrometheusMetrics) RecordActuatorAction(actionType, status string, duration time.Duration) {
	m.ActuatorActionsTotal.WithLabelValues(actionType, status).Inc()
	m.ActuatorActionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
