package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/account"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/breaker"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/classify"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/phone"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/provider"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/route"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/store"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// AdminAlerter receives operator-facing failure notifications. Implementations
// must never fail the delivery that triggered them.
type AdminAlerter interface {
	DeliveryFailure(ctx context.Context, record *models.NotificationRecord, kind, detail, failingRegion string)
	CircuitOpened(ctx context.Context, region string, failures int)
}

// EmailSender delivers email-channel notifications.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Orchestrator executes one delivery attempt end to end: claim, route,
// send, classify, persist. It owns all record status transitions after
// creation.
type Orchestrator struct {
	store    store.Store
	router   *route.Router
	registry *account.Registry
	phones   *phone.Normalizer
	breaker  *breaker.Breaker
	client   provider.Client
	email    EmailSender
	alerter  AdminAlerter
	metrics  *metrics.Manager
	retry    config.RetryConfig
	logger   *logrus.Entry

	now func() time.Time
}

// NewOrchestrator wires a delivery orchestrator. email, alerter and metrics
// may be nil.
func NewOrchestrator(
	st store.Store,
	router *route.Router,
	registry *account.Registry,
	phones *phone.Normalizer,
	brk *breaker.Breaker,
	client provider.Client,
	email EmailSender,
	alerter AdminAlerter,
	m *metrics.Manager,
	retry config.RetryConfig,
) *Orchestrator {
	return &Orchestrator{
		store:    st,
		router:   router,
		registry: registry,
		phones:   phones,
		breaker:  brk,
		client:   client,
		email:    email,
		alerter:  alerter,
		metrics:  m,
		retry:    retry,
		logger:   utils.ComponentLogger("orchestrator"),
		now:      time.Now,
	}
}

// Deliver runs one attempt for the record. A record that cannot be claimed
// (terminal, cancelled, or already being sent) is skipped without error.
func (o *Orchestrator) Deliver(ctx context.Context, id string) error {
	record, err := o.store.ClaimForSending(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		o.logger.WithField("id", id).Debug("Record not claimable, skipping")
		return nil
	}

	log := o.logger.WithFields(logrus.Fields{
		"id":      record.ID,
		"channel": record.Channel,
		"attempt": record.AttemptCount,
	})

	switch record.Channel {
	case models.ChannelInApp:
		// In-app records are the notification; storing them is delivery.
		return o.finishSuccess(ctx, record, "", "")
	case models.ChannelEmail:
		return o.deliverEmail(ctx, record, log)
	default:
		return o.deliverPhone(ctx, record, log)
	}
}

func (o *Orchestrator) deliverPhone(ctx context.Context, record *models.NotificationRecord, log *logrus.Entry) error {
	if record.Recipient.Phone == "" {
		return o.finishFailure(ctx, record, "", classify.KindMissingContact,
			"recipient has no phone number",
			classify.Classify(classify.KindMissingContact, "", 0))
	}

	to := o.phones.Normalize(record.Recipient.Phone)
	preferred := o.router.Route(record.SenderRole, to, record.Category)
	region := o.router.ResolveUsable(preferred, o.openRegions()...)

	if o.breaker.IsOpen(region) {
		// Every candidate region is failing; synthesize a temporary failure
		// without touching the provider.
		log.WithField("region", region).Warn("Circuit open, attempt short-circuited")
		return o.finishFailure(ctx, record, region, classify.KindCircuitOpen,
			fmt.Sprintf("circuit open for region %s", region),
			classify.Classify(classify.KindCircuitOpen, "", 0))
	}

	acct, err := o.registry.Get(region)
	if err != nil {
		return o.finishFailure(ctx, record, region, classify.KindConfig,
			err.Error(), classify.Classify(classify.KindConfig, "", 0))
	}

	result := o.client.Send(ctx, provider.SendRequest{
		Account:  acct,
		Channel:  record.Channel,
		To:       to,
		Message:  record.Message,
		MediaURL: record.MediaURL,
	})

	if result.Success {
		o.recordBreakerSuccess(region)
		log.WithFields(logrus.Fields{
			"region":     region,
			"message_id": result.MessageID,
		}).Info("Notification delivered")
		return o.finishSuccess(ctx, record, region, result.MessageID)
	}

	o.recordBreakerFailure(ctx, region)
	return o.finishFailure(ctx, record, region, result.Kind, result.Message,
		classify.Classify(result.Kind, result.Message, result.HTTPStatus))
}

func (o *Orchestrator) deliverEmail(ctx context.Context, record *models.NotificationRecord, log *logrus.Entry) error {
	if record.Recipient.Email == "" {
		return o.finishFailure(ctx, record, "", classify.KindMissingContact,
			"recipient has no email address",
			classify.Classify(classify.KindMissingContact, "", 0))
	}
	if o.email == nil {
		return o.finishFailure(ctx, record, "", classify.KindConfig,
			"no email sender configured",
			classify.Classify(classify.KindConfig, "", 0))
	}

	subject := fmt.Sprintf("TS Cargo: %s", record.Category)
	if err := o.email.Send(ctx, record.Recipient.Email, subject, record.Message); err != nil {
		return o.finishFailure(ctx, record, "", classify.KindConnection, err.Error(),
			classify.Classify(classify.KindConnection, err.Error(), 0))
	}

	log.Info("Email notification delivered")
	return o.finishSuccess(ctx, record, "", "")
}

func (o *Orchestrator) finishSuccess(ctx context.Context, record *models.NotificationRecord, region, messageID string) error {
	now := o.now().UTC()
	record.Status = models.StatusSent
	record.Region = region
	record.ProviderMessageID = messageID
	record.SentAt = &now
	record.NextAttemptAt = nil
	record.LastError = nil
	return o.store.UpdateRecord(ctx, record)
}

func (o *Orchestrator) finishFailure(ctx context.Context, record *models.NotificationRecord, region, kind, detail string, cls classify.Classification) error {
	lastError := kind
	if detail != "" {
		lastError = kind + ": " + detail
	}
	record.Region = region
	record.LastError = &lastError

	exhausted := record.AttemptsExhausted()
	retryable := cls.Temporary && cls.ShouldRetry && !exhausted

	if retryable {
		next := o.now().UTC().Add(o.backoff(record.AttemptCount))
		record.Status = models.StatusFailedTemporary
		record.NextAttemptAt = &next
	} else {
		record.Status = models.StatusFailedPermanent
		record.NextAttemptAt = nil
	}

	o.logger.WithFields(logrus.Fields{
		"id":             record.ID,
		"region":         region,
		"kind":           kind,
		"attempt":        record.AttemptCount,
		"status":         record.Status,
		"recommendation": cls.Recommendation,
	}).Warn("Delivery attempt failed")

	// Permanent failures always reach the operator; temporary ones only
	// when the classifier flags them.
	if o.alerter != nil && (cls.AlertAdmin || record.Status == models.StatusFailedPermanent) {
		o.alerter.DeliveryFailure(ctx, record, kind, detail, region)
	}

	return o.store.UpdateRecord(ctx, record)
}

// backoff returns the delay before attempt n+1: base doubled per prior
// attempt, capped at the configured maximum.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	base := o.retry.BaseDelay
	max := o.retry.MaxDelay
	if attempt < 1 {
		attempt = 1
	}
	if attempt-1 >= 20 {
		return max
	}
	delay := base << uint(attempt-1)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// openRegions lists configured regions whose circuit is currently open.
func (o *Orchestrator) openRegions() []string {
	var open []string
	for _, region := range o.registry.Regions() {
		if o.breaker.IsOpen(region) {
			open = append(open, region)
		}
	}
	return open
}

func (o *Orchestrator) recordBreakerSuccess(region string) {
	o.breaker.RecordSuccess(region)
	if o.metrics != nil {
		o.metrics.SetCircuitOpen(region, false)
	}
}

func (o *Orchestrator) recordBreakerFailure(ctx context.Context, region string) {
	wasOpen := o.breaker.IsOpen(region)
	o.breaker.RecordFailure(region)
	nowOpen := o.breaker.IsOpen(region)

	if o.metrics != nil {
		o.metrics.SetCircuitOpen(region, nowOpen)
		if nowOpen && !wasOpen {
			o.metrics.CircuitOpened(region)
		}
	}
	if nowOpen && !wasOpen {
		o.logger.WithFields(logrus.Fields{
			"region":   region,
			"failures": o.breaker.Failures(region),
		}).Error("Circuit breaker opened")
		if o.alerter != nil {
			o.alerter.CircuitOpened(ctx, region, o.breaker.Failures(region))
		}
	}
}
