package metrics

import (
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     utils.ComponentLogger("metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// ObserveSend records one provider send outcome
func (m *Manager) ObserveSend(region, channel string, success bool, kind string, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
		m.prometheus.SendFailuresTotal.WithLabelValues(region, kind).Inc()
	}
	m.prometheus.SendsTotal.WithLabelValues(region, channel, status).Inc()
	m.prometheus.SendDuration.WithLabelValues(region, channel).Observe(duration.Seconds())
}

// SetQueueDepth updates the delivery queue depth gauge
func (m *Manager) SetQueueDepth(depth int) {
	m.prometheus.QueueDepth.Set(float64(depth))
}

// SetCircuitOpen updates the breaker gauge for a region
func (m *Manager) SetCircuitOpen(region string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	m.prometheus.CircuitState.WithLabelValues(region).Set(value)
}

// CircuitOpened counts one breaker opening for a region
func (m *Manager) CircuitOpened(region string) {
	m.prometheus.CircuitOpenedTotal.WithLabelValues(region).Inc()
}

// ObserveSweep records one retry scheduler sweep
func (m *Manager) ObserveSweep(duration time.Duration, swept, reclaimed int) {
	m.prometheus.SweepsTotal.Inc()
	m.prometheus.SweepDuration.Observe(duration.Seconds())
	m.prometheus.RecordsSwept.Add(float64(swept))
	m.prometheus.RecordsReclaimed.Add(float64(reclaimed))
}

// AlertSent counts one admin alert delivery
func (m *Manager) AlertSent(channel string) {
	m.prometheus.AlertsSentTotal.WithLabelValues(channel).Inc()
}

// AlertSuppressed counts one cooldown suppression
func (m *Manager) AlertSuppressed() {
	m.prometheus.AlertsSuppressedTotal.Inc()
}

// SetAccountHealth updates the health gauge for a region
func (m *Manager) SetAccountHealth(region string, score float64) {
	m.prometheus.AccountHealth.WithLabelValues(region).Set(score)
}

// ObserveDatabaseOperation records one store call
func (m *Manager) ObserveDatabaseOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.prometheus.DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
	m.prometheus.DatabaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one API request
func (m *Manager) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.prometheus.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.prometheus.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.MemoryUsage.Set(float64(memStats.Alloc))
	m.prometheus.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.prometheus.ApplicationUptime.Set(time.Since(m.startTime).Seconds())
}
