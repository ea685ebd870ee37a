package health

import (
	"sync"
	"time"
)

const maxLatencySamples = 100

// AccountMetrics is a snapshot of one account's rolling delivery counters.
// Used for health scoring only; never authoritative for delivery decisions.
type AccountMetrics struct {
	Region      string           `json:"region"`
	Total       int64            `json:"total"`
	Success     int64            `json:"success"`
	Errors      int64            `json:"errors"`
	ErrorTypes  map[string]int64 `json:"error_types"`
	SuccessRate float64          `json:"success_rate"`
	AvgLatency  time.Duration    `json:"avg_latency"`
	WindowStart time.Time        `json:"window_start"`
}

type accountState struct {
	total       int64
	success     int64
	errors      int64
	errorTypes  map[string]int64
	latencies   []time.Duration
	windowStart time.Time
}

// MetricsStore aggregates per-account delivery outcomes over a sliding
// retention window. Counters reset when the window expires.
type MetricsStore struct {
	mu       sync.Mutex
	window   time.Duration
	accounts map[string]*accountState
	now      func() time.Time
}

// NewMetricsStore creates a metrics store; window <= 0 means no rollover.
func NewMetricsStore(window time.Duration) *MetricsStore {
	return &MetricsStore{
		window:   window,
		accounts: make(map[string]*accountState),
		now:      time.Now,
	}
}

// Record registers one send outcome for a region. Safe for concurrent use.
func (m *MetricsStore) Record(region string, success bool, errorKind string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateLocked(region)
	s.total++
	if success {
		s.success++
	} else {
		s.errors++
		if errorKind != "" {
			s.errorTypes[errorKind]++
		}
	}

	s.latencies = append(s.latencies, duration)
	if len(s.latencies) > maxLatencySamples {
		s.latencies = s.latencies[len(s.latencies)-maxLatencySamples:]
	}
}

// Snapshot returns the current counters for a region.
func (m *MetricsStore) Snapshot(region string) AccountMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked(region)
}

// SnapshotAll returns counters for every region seen so far.
func (m *MetricsStore) SnapshotAll() map[string]AccountMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]AccountMetrics, len(m.accounts))
	for region := range m.accounts {
		out[region] = m.snapshotLocked(region)
	}
	return out
}

// Reset clears the counters for a region.
func (m *MetricsStore) Reset(region string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.accounts, region)
}

func (m *MetricsStore) stateLocked(region string) *accountState {
	s, ok := m.accounts[region]
	if ok && m.window > 0 && m.now().Sub(s.windowStart) > m.window {
		// Retention window elapsed: start a fresh window.
		ok = false
	}
	if !ok {
		s = &accountState{
			errorTypes:  make(map[string]int64),
			windowStart: m.now(),
		}
		m.accounts[region] = s
	}
	return s
}

func (m *MetricsStore) snapshotLocked(region string) AccountMetrics {
	s, ok := m.accounts[region]
	if !ok {
		return AccountMetrics{Region: region, ErrorTypes: map[string]int64{}}
	}

	snap := AccountMetrics{
		Region:      region,
		Total:       s.total,
		Success:     s.success,
		Errors:      s.errors,
		ErrorTypes:  make(map[string]int64, len(s.errorTypes)),
		WindowStart: s.windowStart,
	}
	for k, v := range s.errorTypes {
		snap.ErrorTypes[k] = v
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.success) / float64(s.total)
	}
	if len(s.latencies) > 0 {
		var sum time.Duration
		for _, d := range s.latencies {
			sum += d
		}
		snap.AvgLatency = sum / time.Duration(len(s.latencies))
	}
	return snap
}
