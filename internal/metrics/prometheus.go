package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the notification pipeline
type PrometheusMetrics struct {
	// Delivery metrics
	SendsTotal        *prometheus.CounterVec
	SendFailuresTotal *prometheus.CounterVec
	SendDuration      *prometheus.HistogramVec
	QueueDepth        prometheus.Gauge

	// Circuit breaker metrics
	CircuitState       *prometheus.GaugeVec
	CircuitOpenedTotal *prometheus.CounterVec

	// Retry scheduler metrics
	SweepsTotal      prometheus.Counter
	SweepDuration    prometheus.Histogram
	RecordsSwept     prometheus.Counter
	RecordsReclaimed prometheus.Counter

	// Alerting metrics
	AlertsSentTotal       *prometheus.CounterVec
	AlertsSuppressedTotal prometheus.Counter

	// Health metrics
	AccountHealth *prometheus.GaugeVec

	// Database metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application metrics
	ApplicationUptime prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		SendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_sends_total",
				Help: "Total number of provider send attempts",
			},
			[]string{"region", "channel", "status"},
		),

		SendFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_send_failures_total",
				Help: "Total number of failed sends by error kind",
			},
			[]string{"region", "kind"},
		),

		SendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notify_send_duration_seconds",
				Help:    "Duration of provider send calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"region", "channel"},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notify_queue_depth",
				Help: "Current depth of the delivery work queue",
			},
		),

		CircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notify_circuit_open",
				Help: "Circuit breaker state per region (1 open, 0 closed)",
			},
			[]string{"region"},
		),

		CircuitOpenedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_circuit_opened_total",
				Help: "Total number of circuit breaker openings",
			},
			[]string{"region"},
		),

		SweepsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_retry_sweeps_total",
				Help: "Total number of retry scheduler sweeps",
			},
		),

		SweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notify_retry_sweep_duration_seconds",
				Help:    "Duration of retry scheduler sweeps",
				Buckets: prometheus.DefBuckets,
			},
		),

		RecordsSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_retry_records_swept_total",
				Help: "Total number of due records dispatched by the scheduler",
			},
		),

		RecordsReclaimed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_retry_records_reclaimed_total",
				Help: "Total number of stale sending records reclaimed",
			},
		),

		AlertsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_alerts_sent_total",
				Help: "Total number of admin alerts sent by channel",
			},
			[]string{"channel"},
		),

		AlertsSuppressedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "notify_alerts_suppressed_total",
				Help: "Total number of admin alerts suppressed by cooldown",
			},
		),

		AccountHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notify_account_health",
				Help: "Account health status (1 healthy, 0.5 degraded, 0 unhealthy)",
			},
			[]string{"region"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notify_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notify_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notify_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notify_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notify_goroutine_count",
				Help: "Current number of goroutines",
			},
		),
	}
}
