package store

import (
	"context"
	"time"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
)

// Store defines the persistence interface for notification records.
type Store interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Record operations
	CreateRecord(ctx context.Context, record *models.NotificationRecord) error
	GetRecord(ctx context.Context, id string) (*models.NotificationRecord, error)
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]*models.NotificationRecord, error)
	CountRecords(ctx context.Context, filter models.RecordFilter) (int64, error)
	UpdateRecord(ctx context.Context, record *models.NotificationRecord) error

	// Delivery coordination. ClaimForSending atomically flips a claimable
	// record to sending and increments its attempt counter; it returns nil
	// (no error) when the record exists but is not claimable.
	ClaimForSending(ctx context.Context, id string) (*models.NotificationRecord, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error)
	ReclaimStuckSending(ctx context.Context, olderThan time.Duration) (int, error)
	RearmForRetry(ctx context.Context, businessRef string) (int, error)
	CancelRecord(ctx context.Context, id string) error

	// Monitoring
	Stats(ctx context.Context) (*models.RecordStats, error)
}

// StoreConfig holds storage configuration
type StoreConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// claimableStatuses are the states a record may be picked up from for a
// delivery attempt.
const claimableStatuses = "'pending', 'failed_temporary'"
