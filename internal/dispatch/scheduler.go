package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/config"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/store"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// Scheduler periodically sweeps the store for due records and queues them on
// the delivery pool. It also reclaims records stranded in sending by a crash.
type Scheduler struct {
	store   store.Store
	pool    *Pool
	retry   config.RetryConfig
	metrics *metrics.Manager
	logger  *logrus.Entry

	trigger  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a retry scheduler; metrics may be nil.
func NewScheduler(st store.Store, pool *Pool, retry config.RetryConfig, m *metrics.Manager) *Scheduler {
	return &Scheduler{
		store:    st,
		pool:     pool,
		retry:    retry,
		metrics:  m,
		logger:   utils.ComponentLogger("retry_scheduler"),
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.WithField("interval", s.retry.SweepInterval).Info("Retry scheduler started")
	return nil
}

// Stop halts the sweep loop
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Retry scheduler stopped")
	return nil
}

// TriggerSweep requests an immediate sweep outside the regular interval,
// for example after an account reconnects. Non-blocking; coalesces with a
// sweep already requested.
func (s *Scheduler) TriggerSweep() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.retry.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.trigger:
			s.sweep(ctx)
		}
	}
}

// sweep reclaims stale sending records, then queues everything due.
func (s *Scheduler) sweep(ctx context.Context) {
	start := time.Now()

	reclaimed, err := s.store.ReclaimStuckSending(ctx, s.retry.StaleSendingAfter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to reclaim stuck records")
	} else if reclaimed > 0 {
		s.logger.WithField("count", reclaimed).Warn("Reclaimed records stuck in sending")
	}

	due, err := s.store.ListDue(ctx, time.Now().UTC(), s.retry.BatchLimit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due records")
		return
	}

	queued := 0
	for _, record := range due {
		if s.pool.Enqueue(record.ID) {
			queued++
		} else {
			// Queue is full; remaining records stay due for the next sweep.
			break
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(start), queued, reclaimed)
	}
	if queued > 0 {
		s.logger.WithFields(logrus.Fields{
			"due":    len(due),
			"queued": queued,
		}).Info("Sweep queued due records")
	}
}
