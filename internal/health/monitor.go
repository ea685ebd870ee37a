package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/classify"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Health status levels, ordered from best to worst.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// AccountStatus is the current health assessment of one provider account.
type AccountStatus struct {
	Region      string        `json:"region"`
	Connected   bool          `json:"connected"`
	Status      string        `json:"status"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	LastProbeAt time.Time     `json:"last_probe_at"`
	LastError   string        `json:"last_error,omitempty"`
}

// SweepTrigger requests an immediate retry sweep. Satisfied by
// dispatch.Scheduler.
type SweepTrigger interface {
	TriggerSweep()
}

// Monitor actively probes every configured account and scores it from the
// rolling delivery counters. A reconnected account triggers an immediate
// retry sweep so queued work drains without waiting for the interval.
type Monitor struct {
	registry *account.Registry
	client   provider.Client
	store    *MetricsStore
	sweeper  SweepTrigger
	metrics  *metrics.Manager
	cfg      config.HealthConfig
	logger   *logrus.Entry

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	running  bool
	statuses map[string]AccountStatus
}

// NewMonitor creates a health monitor; sweeper and metrics may be nil.
func NewMonitor(registry *account.Registry, client provider.Client, store *MetricsStore, sweeper SweepTrigger, m *metrics.Manager, cfg config.HealthConfig) *Monitor {
	return &Monitor{
		registry: registry,
		client:   client,
		store:    store,
		sweeper:  sweeper,
		metrics:  m,
		cfg:      cfg,
		logger:   utils.ComponentLogger("health_monitor"),
		stopChan: make(chan struct{}),
		statuses: make(map[string]AccountStatus),
	}
}

// Start launches the probe loop
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || !m.cfg.Enabled {
		return nil
	}
	m.running = true

	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.WithField("interval", m.cfg.ProbeInterval).Info("Health monitor started")
	return nil
}

// Stop halts the probe loop
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()
	m.logger.Info("Health monitor stopped")
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	// First probe shortly after startup rather than a full interval later.
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			m.ProbeAll(ctx)
			timer.Reset(m.cfg.ProbeInterval)
		}
	}
}

// ProbeAll probes every usable account once.
func (m *Monitor) ProbeAll(ctx context.Context) {
	for _, region := range m.registry.Regions() {
		if !m.registry.Usable(region) {
			continue
		}
		m.probe(ctx, region)
	}
}

func (m *Monitor) probe(ctx context.Context, region string) {
	acct, err := m.registry.Get(region)
	if err != nil {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	result := m.client.Send(probeCtx, provider.SendRequest{
		Account: acct,
		Channel: models.ChannelWhatsApp,
		To:      m.cfg.ProbeNumber,
		Message: "health probe",
	})

	connected, probeErr := interpretProbe(result)
	m.evaluate(region, connected, probeErr)
}

// interpretProbe decides connectivity from a probe outcome. A gateway that
// rejects the probe message itself (HTTP 400 or a provider-level error) is
// still reachable and authenticated; only auth rejections and transport
// failures count as disconnected.
func interpretProbe(result provider.SendResult) (bool, string) {
	if result.Success {
		return true, ""
	}
	switch result.Kind {
	case classify.KindTimeout, classify.KindConnection, classify.KindSSL:
		return false, result.Kind
	case "http_401", "http_403":
		return false, result.Kind
	}
	// Anything else, gateway 5xx included, proves the account reachable and
	// authenticated; sustained failures surface through the success-rate
	// scoring instead.
	return true, ""
}

// evaluate folds the probe outcome and rolling counters into a status,
// firing a sweep when an account comes back.
func (m *Monitor) evaluate(region string, connected bool, probeErr string) {
	snap := m.store.Snapshot(region)

	status := AccountStatus{
		Region:      region,
		Connected:   connected,
		SuccessRate: snap.SuccessRate,
		AvgLatency:  snap.AvgLatency,
		LastProbeAt: time.Now().UTC(),
		LastError:   probeErr,
	}
	status.Status = scoreAccount(connected, snap, m.cfg.LatencyThreshold)

	m.mu.Lock()
	prev, seen := m.statuses[region]
	m.statuses[region] = status
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetAccountHealth(region, healthGauge(status.Status))
	}

	if seen && !prev.Connected && connected {
		m.logger.WithField("region", region).Info("Account reconnected, triggering sweep")
		if m.sweeper != nil {
			m.sweeper.TriggerSweep()
		}
	}
	if seen && prev.Connected && !connected {
		m.logger.WithFields(logrus.Fields{
			"region": region,
			"error":  probeErr,
		}).Warn("Account disconnected")
	}
}

// scoreAccount maps connectivity plus rolling counters to a status level.
func scoreAccount(connected bool, snap AccountMetrics, latencyThreshold time.Duration) string {
	if !connected {
		return StatusUnhealthy
	}
	if snap.Total == 0 {
		return StatusHealthy
	}
	switch {
	case snap.SuccessRate < 0.70:
		return StatusUnhealthy
	case snap.SuccessRate < 0.90:
		return StatusDegraded
	}
	if latencyThreshold > 0 && snap.AvgLatency > latencyThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func healthGauge(status string) float64 {
	switch status {
	case StatusHealthy:
		return 1.0
	case StatusDegraded:
		return 0.5
	}
	return 0.0
}

// Statuses returns the latest assessment per account.
func (m *Monitor) Statuses() map[string]AccountStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]AccountStatus, len(m.statuses))
	for region, status := range m.statuses {
		out[region] = status
	}
	return out
}

// Overall returns the worst status across all accounts.
func (m *Monitor) Overall() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	overall := StatusHealthy
	for _, status := range m.statuses {
		switch status.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
