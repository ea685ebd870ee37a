package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/phone"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/route"
)

type stubProvider struct {
	mu    sync.Mutex
	calls []provider.SendRequest
	fail  bool
}

func (s *stubProvider) Send(ctx context.Context, req provider.SendRequest) provider.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.fail {
		return provider.SendResult{Kind: "connection_error"}
	}
	return provider.SendResult{Success: true, MessageID: "alert-1"}
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubEmail struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *stubEmail) Send(ctx context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *stubEmail) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func alertConfig() config.AlertingConfig {
	return config.AlertingConfig{
		Enabled:     true,
		Region:      "system",
		AdminPhones: []string{"+22370000001"},
		AdminEmails: []string{"ops@ts-cargo.example"},
		Cooldown:    90 * time.Minute,
	}
}

func newTestAlerter(accounts []models.AccountConfig, client provider.Client, email EmailDeliverer) *Alerter {
	registry := account.NewRegistry(accounts)
	router := route.NewRouter(config.RoutingConfig{
		SystemRegion:  "system",
		DefaultRegion: "mali",
		FallbackOrder: []string{"mali", "chine", "system"},
		PrefixRegions: map[string]string{"223": "mali", "86": "chine"},
	}, registry, phone.NewNormalizer("", ""))
	return NewAlerter(alertConfig(), client, registry, router, email, nil)
}

func failedRecord() *models.NotificationRecord {
	return &models.NotificationRecord{
		ID:           "rec-1",
		Category:     models.CategoryParcelArrived,
		AttemptCount: 10,
		MaxAttempts:  10,
	}
}

func multiRegionAccounts() []models.AccountConfig {
	return []models.AccountConfig{
		{Region: "mali", Generation: models.GenerationLegacy, InstanceID: "i1", AccessToken: "t1", Active: true},
		{Region: "system", Generation: models.GenerationLegacy, InstanceID: "i2", AccessToken: "t2", Active: true},
	}
}

func TestDeliveryFailureSendsWhatsApp(t *testing.T) {
	client := &stubProvider{}
	email := &stubEmail{}
	alerter := newTestAlerter(multiRegionAccounts(), client, email)

	alerter.DeliveryFailure(context.Background(), failedRecord(), "http_401", "invalid token", "mali")

	require.Equal(t, 1, client.callCount())
	assert.Equal(t, "system", client.calls[0].Account.Region)
	assert.Contains(t, client.calls[0].Message, "http_401")
	assert.Equal(t, 0, email.sentCount())
}

func TestAlertCooldownSuppressesRepeats(t *testing.T) {
	client := &stubProvider{}
	alerter := newTestAlerter(multiRegionAccounts(), client, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		alerter.DeliveryFailure(ctx, failedRecord(), "http_401", "invalid token", "mali")
	}
	assert.Equal(t, 1, client.callCount())

	// A different key is not suppressed.
	alerter.DeliveryFailure(ctx, failedRecord(), "timeout", "", "mali")
	assert.Equal(t, 2, client.callCount())
}

// An alert about the only usable region must not travel through it; it falls
// back to email.
func TestAlertAvoidsFailingRegion(t *testing.T) {
	systemOnly := []models.AccountConfig{
		{Region: "system", Generation: models.GenerationLegacy, InstanceID: "i2", AccessToken: "t2", Active: true},
	}
	client := &stubProvider{}
	email := &stubEmail{}
	alerter := newTestAlerter(systemOnly, client, email)

	alerter.CircuitOpened(context.Background(), "system", 5)

	assert.Equal(t, 0, client.callCount())
	assert.Equal(t, 1, email.sentCount())
}

func TestAlertFallsBackToEmailWhenWhatsAppFails(t *testing.T) {
	client := &stubProvider{fail: true}
	email := &stubEmail{}
	alerter := newTestAlerter(multiRegionAccounts(), client, email)

	alerter.CircuitOpened(context.Background(), "mali", 5)

	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 1, email.sentCount())
}

// Total alert failure is swallowed, never raised.
func TestAlertFailureIsSilent(t *testing.T) {
	client := &stubProvider{fail: true}
	email := &stubEmail{err: errors.New("smtp down")}
	alerter := newTestAlerter(multiRegionAccounts(), client, email)

	assert.NotPanics(t, func() {
		alerter.DeliveryFailure(context.Background(), failedRecord(), "http_500", "", "mali")
	})
}

// A failed delivery must not arm the cooldown, or the condition stays
// silent for the whole window.
func TestFailedAlertDoesNotArmCooldown(t *testing.T) {
	client := &stubProvider{fail: true}
	email := &stubEmail{err: errors.New("smtp down")}
	alerter := newTestAlerter(multiRegionAccounts(), client, email)
	ctx := context.Background()

	alerter.CircuitOpened(ctx, "mali", 5)
	require.Equal(t, 1, client.callCount())

	// Channels recover; the repeat of the same condition goes out.
	client.fail = false
	alerter.CircuitOpened(ctx, "mali", 5)
	assert.Equal(t, 2, client.callCount())

	// Now the cooldown is armed.
	alerter.CircuitOpened(ctx, "mali", 5)
	assert.Equal(t, 2, client.callCount())
}

func TestAlertDisabled(t *testing.T) {
	client := &stubProvider{}
	alerter := newTestAlerter(multiRegionAccounts(), client, nil)
	alerter.cfg.Enabled = false

	alerter.DeliveryFailure(context.Background(), failedRecord(), "http_401", "", "mali")
	alerter.CircuitOpened(context.Background(), "mali", 5)
	assert.Equal(t, 0, client.callCount())
}
