package alert

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/route"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// EmailDeliverer sends one email message. Satisfied by SMTPSender.
type EmailDeliverer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Alerter notifies operators about delivery problems over WhatsApp with an
// email fallback. Alert failures are logged and swallowed; an alert must
// never fail the delivery that raised it. Alerts about a failing region are
// never sent through that region.
type Alerter struct {
	cfg      config.AlertingConfig
	client   provider.Client
	registry *account.Registry
	router   *route.Router
	email    EmailDeliverer
	metrics  *metrics.Manager
	logger   *logrus.Entry

	// cooldown suppresses repeats of the same alert key.
	cooldown *gocache.Cache
}

// NewAlerter creates an admin alerter; email, metrics may be nil.
func NewAlerter(cfg config.AlertingConfig, client provider.Client, registry *account.Registry, router *route.Router, email EmailDeliverer, m *metrics.Manager) *Alerter {
	window := cfg.Cooldown
	if window <= 0 {
		window = 90 * time.Minute
	}
	return &Alerter{
		cfg:      cfg,
		client:   client,
		registry: registry,
		router:   router,
		email:    email,
		metrics:  m,
		logger:   utils.ComponentLogger("alerter"),
		cooldown: gocache.New(window, 2*window),
	}
}

// DeliveryFailure reports a notification that failed permanently or with an
// operator-actionable error.
func (a *Alerter) DeliveryFailure(ctx context.Context, record *models.NotificationRecord, kind, detail, failingRegion string) {
	if !a.cfg.Enabled {
		return
	}

	key := fmt.Sprintf("delivery:%s:%s", failingRegion, kind)
	body := fmt.Sprintf(
		"Notification delivery failure\nRecord: %s\nCategory: %s\nRegion: %s\nError: %s\nAttempt: %d/%d",
		record.ID, record.Category, failingRegion, kind, record.AttemptCount, record.MaxAttempts)
	if detail != "" {
		body += "\nDetail: " + detail
	}

	a.notify(ctx, key, "Delivery failure: "+kind, body, failingRegion)
}

// CircuitOpened reports a region circuit breaker opening.
func (a *Alerter) CircuitOpened(ctx context.Context, region string, failures int) {
	if !a.cfg.Enabled {
		return
	}

	key := "circuit:" + region
	body := fmt.Sprintf(
		"Circuit breaker opened for region %s after %d consecutive failures. Deliveries are short-circuited until the cooldown elapses.",
		region, failures)

	a.notify(ctx, key, "Circuit open: "+region, body, region)
}

func (a *Alerter) notify(ctx context.Context, key, subject, body, failingRegion string) {
	if _, suppressed := a.cooldown.Get(key); suppressed {
		if a.metrics != nil {
			a.metrics.AlertSuppressed()
		}
		a.logger.WithField("key", key).Debug("Alert suppressed by cooldown")
		return
	}
	sent := a.sendWhatsApp(ctx, body, failingRegion)
	if !sent {
		sent = a.sendEmail(ctx, subject, body)
	}
	if !sent {
		// No cooldown entry: the next occurrence should try again rather
		// than stay silent for the whole window.
		a.logger.WithField("key", key).Error("Alert could not be delivered on any channel")
		return
	}
	a.cooldown.Set(key, time.Now(), gocache.DefaultExpiration)
}

// sendWhatsApp pushes the alert to every admin phone through a region that
// is not the one being alerted about.
func (a *Alerter) sendWhatsApp(ctx context.Context, body, failingRegion string) bool {
	if len(a.cfg.AdminPhones) == 0 {
		return false
	}

	region := a.router.ResolveUsable(a.cfg.Region, failingRegion)
	if region == failingRegion || !a.registry.Usable(region) {
		a.logger.WithFields(logrus.Fields{
			"failing": failingRegion,
			"region":  region,
		}).Warn("No alert route avoids the failing region, falling back to email")
		return false
	}

	acct, err := a.registry.Get(region)
	if err != nil {
		return false
	}

	delivered := false
	for _, phone := range a.cfg.AdminPhones {
		result := a.client.Send(ctx, provider.SendRequest{
			Account: acct,
			Channel: models.ChannelWhatsApp,
			To:      phone,
			Message: body,
		})
		if result.Success {
			delivered = true
			if a.metrics != nil {
				a.metrics.AlertSent("whatsapp")
			}
		} else {
			a.logger.WithFields(logrus.Fields{
				"phone": phone,
				"kind":  result.Kind,
			}).Warn("WhatsApp alert failed")
		}
	}
	return delivered
}

func (a *Alerter) sendEmail(ctx context.Context, subject, body string) bool {
	if a.email == nil || len(a.cfg.AdminEmails) == 0 {
		return false
	}

	delivered := false
	for _, addr := range a.cfg.AdminEmails {
		if err := a.email.Send(ctx, addr, subject, body); err != nil {
			a.logger.WithError(err).WithField("email", addr).Warn("Email alert failed")
			continue
		}
		delivered = true
		if a.metrics != nil {
			a.metrics.AlertSent("email")
		}
	}
	return delivered
}
