package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/store"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Pool runs delivery attempts on a bounded worker pool. Records enter either
// through Submit (new notifications) or Enqueue (scheduler sweeps).
type Pool struct {
	orchestrator *Orchestrator
	store        store.Store
	delivery     config.DeliveryConfig
	retry        config.RetryConfig
	metrics      *metrics.Manager
	logger       *logrus.Entry

	queue    chan string
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewPool creates a delivery pool; metrics may be nil.
func NewPool(orchestrator *Orchestrator, st store.Store, delivery config.DeliveryConfig, retry config.RetryConfig, m *metrics.Manager) *Pool {
	return &Pool{
		orchestrator: orchestrator,
		store:        st,
		delivery:     delivery,
		retry:        retry,
		metrics:      m,
		logger:       utils.ComponentLogger("delivery_pool"),
		queue:        make(chan string, delivery.QueueSize),
		stopChan:     make(chan struct{}),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true

	for i := 0; i < p.delivery.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.WithField("workers", p.delivery.Workers).Info("Delivery pool started")
	return nil
}

// Stop drains the workers and waits for in-flight attempts
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("Delivery pool stopped")
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.WithField("worker", id)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case recordID := <-p.queue:
			p.observeQueueDepth()
			if err := p.orchestrator.Deliver(ctx, recordID); err != nil {
				log.WithError(err).WithField("id", recordID).Error("Delivery attempt errored")
			}
		}
	}
}

// Submit validates and persists a new notification, then queues its first
// delivery attempt. The record is durable before the attempt is scheduled,
// so a full queue only delays delivery until the next sweep.
func (p *Pool) Submit(ctx context.Context, record *models.NotificationRecord) error {
	if record.Recipient.UserID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Recipient user ID is required", "")
	}
	if record.Message == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Message is required", "")
	}
	if record.Channel == "" {
		record.Channel = models.ChannelWhatsApp
	}
	if record.Category == "" {
		record.Category = models.CategoryGeneric
	}

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = utils.GenerateID()
	}
	record.Status = models.StatusPending
	record.AttemptCount = 0
	record.MaxAttempts = p.maxAttemptsFor(record.Category)
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := p.store.CreateRecord(ctx, record); err != nil {
		return err
	}
	p.Enqueue(record.ID)
	return nil
}

// Enqueue offers a record ID to the pool without blocking. Returns false
// when the queue is full; the record stays pending for the retry sweep.
func (p *Pool) Enqueue(id string) bool {
	select {
	case p.queue <- id:
		p.observeQueueDepth()
		return true
	default:
		p.logger.WithField("id", id).Warn("Delivery queue full, deferring to sweep")
		return false
	}
}

// maxAttemptsFor returns the attempt ceiling for a category. Time-sensitive
// categories get a short ceiling; a stale OTP is worse than no OTP.
func (p *Pool) maxAttemptsFor(category models.Category) int {
	if category == models.CategoryOTP {
		return p.retry.CriticalMaxAttempts
	}
	return p.retry.MaxAttempts
}

func (p *Pool) observeQueueDepth() {
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(p.queue))
	}
}
