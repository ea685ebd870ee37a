package store

import (
	"context"
	"time"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/metrics"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
)

// InstrumentedStore wraps a Store and records operation metrics for the
// hot delivery-path calls. Everything else passes through untouched.
type InstrumentedStore struct {
	Store
	metricsManager *metrics.Manager
}

// NewInstrumentedStore creates a store wrapper with metrics.
func NewInstrumentedStore(inner Store, metricsManager *metrics.Manager) *InstrumentedStore {
	return &InstrumentedStore{
		Store:          inner,
		metricsManager: metricsManager,
	}
}

func (s *InstrumentedStore) CreateRecord(ctx context.Context, record *models.NotificationRecord) error {
	start := time.Now()
	err := s.Store.CreateRecord(ctx, record)
	s.observe("create", err, start)
	return err
}

func (s *InstrumentedStore) UpdateRecord(ctx context.Context, record *models.NotificationRecord) error {
	start := time.Now()
	err := s.Store.UpdateRecord(ctx, record)
	s.observe("update", err, start)
	return err
}

func (s *InstrumentedStore) ClaimForSending(ctx context.Context, id string) (*models.NotificationRecord, error) {
	start := time.Now()
	record, err := s.Store.ClaimForSending(ctx, id)
	s.observe("claim", err, start)
	return record, err
}

func (s *InstrumentedStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	start := time.Now()
	records, err := s.Store.ListDue(ctx, now, limit)
	s.observe("list_due", err, start)
	return records, err
}

func (s *InstrumentedStore) ReclaimStuckSending(ctx context.Context, olderThan time.Duration) (int, error) {
	start := time.Now()
	count, err := s.Store.ReclaimStuckSending(ctx, olderThan)
	s.observe("reclaim", err, start)
	return count, err
}

func (s *InstrumentedStore) observe(operation string, err error, start time.Time) {
	if s.metricsManager == nil {
		return
	}
	s.metricsManager.ObserveDatabaseOperation(operation, err, time.Since(start))
}
