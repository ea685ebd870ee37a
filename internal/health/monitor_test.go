package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/classify"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
)

type fakeClient struct {
	mu      sync.Mutex
	results map[string]provider.SendResult
}

func (f *fakeClient) Send(ctx context.Context, req provider.SendRequest) provider.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[req.Account.Region]
}

func (f *fakeClient) set(region string, result provider.SendResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[region] = result
}

type fakeSweeper struct {
	mu    sync.Mutex
	count int
}

func (f *fakeSweeper) TriggerSweep() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
}

func (f *fakeSweeper) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func healthTestConfig() config.HealthConfig {
	return config.HealthConfig{
		Enabled:          true,
		ProbeInterval:    5 * time.Minute,
		ProbeTimeout:     2 * time.Second,
		ProbeNumber:      "+22370000000",
		LatencyThreshold: 5 * time.Second,
		MetricsWindow:    30 * time.Minute,
	}
}

func newTestMonitor(client provider.Client, store *MetricsStore, sweeper SweepTrigger) *Monitor {
	registry := account.NewRegistry([]models.AccountConfig{
		{Region: "mali", Generation: models.GenerationLegacy, InstanceID: "i1", AccessToken: "t1", Active: true},
	})
	return NewMonitor(registry, client, store, sweeper, nil, healthTestConfig())
}

func TestInterpretProbe(t *testing.T) {
	tests := []struct {
		name      string
		result    provider.SendResult
		connected bool
	}{
		{"success", provider.SendResult{Success: true}, true},
		{"bad request tolerated", provider.SendResult{Kind: "http_400"}, true},
		{"provider error tolerated", provider.SendResult{Kind: classify.KindProvider}, true},
		{"auth failure", provider.SendResult{Kind: "http_401"}, false},
		{"forbidden", provider.SendResult{Kind: "http_403"}, false},
		{"timeout", provider.SendResult{Kind: classify.KindTimeout}, false},
		{"connection", provider.SendResult{Kind: classify.KindConnection}, false},
		{"ssl", provider.SendResult{Kind: classify.KindSSL}, false},
		{"server error tolerated", provider.SendResult{Kind: "http_503"}, true},
		{"gateway error tolerated", provider.SendResult{Kind: "http_500"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connected, _ := interpretProbe(tt.result)
			assert.Equal(t, tt.connected, connected)
		})
	}
}

func TestScoreAccount(t *testing.T) {
	threshold := 5 * time.Second

	assert.Equal(t, StatusUnhealthy, scoreAccount(false, AccountMetrics{}, threshold))
	assert.Equal(t, StatusHealthy, scoreAccount(true, AccountMetrics{}, threshold))
	assert.Equal(t, StatusHealthy, scoreAccount(true, AccountMetrics{Total: 100, SuccessRate: 0.95}, threshold))
	assert.Equal(t, StatusDegraded, scoreAccount(true, AccountMetrics{Total: 100, SuccessRate: 0.80}, threshold))
	assert.Equal(t, StatusUnhealthy, scoreAccount(true, AccountMetrics{Total: 100, SuccessRate: 0.50}, threshold))
	assert.Equal(t, StatusDegraded, scoreAccount(true, AccountMetrics{Total: 100, SuccessRate: 0.99, AvgLatency: 10 * time.Second}, threshold))
}

func TestProbeAllRecordsStatus(t *testing.T) {
	client := &fakeClient{results: map[string]provider.SendResult{
		"mali": {Success: true, Duration: 100 * time.Millisecond},
	}}
	store := NewMetricsStore(30 * time.Minute)
	monitor := newTestMonitor(client, store, nil)

	monitor.ProbeAll(context.Background())

	statuses := monitor.Statuses()
	require.Contains(t, statuses, "mali")
	assert.True(t, statuses["mali"].Connected)
	assert.Equal(t, StatusHealthy, statuses["mali"].Status)
	assert.Equal(t, StatusHealthy, monitor.Overall())
}

func TestReconnectTriggersSweep(t *testing.T) {
	client := &fakeClient{results: map[string]provider.SendResult{
		"mali": {Kind: classify.KindConnection},
	}}
	store := NewMetricsStore(30 * time.Minute)
	sweeper := &fakeSweeper{}
	monitor := newTestMonitor(client, store, sweeper)
	ctx := context.Background()

	monitor.ProbeAll(ctx)
	assert.Equal(t, StatusUnhealthy, monitor.Overall())
	assert.Equal(t, 0, sweeper.sweeps())

	// Still down: no sweep on repeated disconnected probes.
	monitor.ProbeAll(ctx)
	assert.Equal(t, 0, sweeper.sweeps())

	client.set("mali", provider.SendResult{Success: true})
	monitor.ProbeAll(ctx)
	assert.Equal(t, 1, sweeper.sweeps())
	assert.True(t, monitor.Statuses()["mali"].Connected)
}

func TestMetricsStoreWindowAndCounters(t *testing.T) {
	store := NewMetricsStore(30 * time.Minute)

	for i := 0; i < 9; i++ {
		store.Record("mali", true, "", 50*time.Millisecond)
	}
	store.Record("mali", false, classify.KindTimeout, 2*time.Second)

	snap := store.Snapshot("mali")
	assert.Equal(t, int64(10), snap.Total)
	assert.Equal(t, int64(9), snap.Success)
	assert.InDelta(t, 0.9, snap.SuccessRate, 0.001)
	assert.Equal(t, int64(1), snap.ErrorTypes[classify.KindTimeout])
	assert.Greater(t, snap.AvgLatency, time.Duration(0))

	store.Reset("mali")
	assert.Equal(t, int64(0), store.Snapshot("mali").Total)
}

func TestMetricsStoreWindowRollover(t *testing.T) {
	store := NewMetricsStore(time.Minute)
	base := time.Now()
	store.now = func() time.Time { return base }

	store.Record("mali", true, "", time.Millisecond)
	assert.Equal(t, int64(1), store.Snapshot("mali").Total)

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	store.Record("mali", false, classify.KindTimeout, time.Millisecond)

	snap := store.Snapshot("mali")
	assert.Equal(t, int64(1), snap.Total)
	assert.Equal(t, int64(1), snap.Errors)
}
