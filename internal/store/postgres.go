package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgresStore creates a new PostgreSQL store instance
func NewPostgresStore(config *StoreConfig) *PostgresStore {
	return &PostgresStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgresStore) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies pending migrations in order
func (s *PostgresStore) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, m := range s.migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", m.Version).Scan(&count); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", m.Version), err.Error())
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}
		s.logger.WithField("version", m.Version).Info("Migration applied")
	}
	return nil
}

// rebind rewrites ? placeholders into PostgreSQL positional markers
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateRecord inserts a new notification record
func (s *PostgresStore) CreateRecord(ctx context.Context, record *models.NotificationRecord) error {
	query := rebind(`INSERT INTO notifications (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.Recipient.UserID, record.Recipient.Name, record.Recipient.Phone,
		record.Recipient.Email, record.Channel, record.Category, record.Message,
		record.MediaURL, record.SenderRole, record.BusinessRef, record.Status, record.AttemptCount,
		record.MaxAttempts, nullTime(record.NextAttemptAt), record.ProviderMessageID,
		record.Region, nullString(record.LastError), record.CreatedAt,
		nullTime(record.SentAt), record.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create notification record", err.Error())
	}
	return nil
}

// GetRecord retrieves a notification record by ID
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*models.NotificationRecord, error) {
	query := rebind(`SELECT ` + recordColumns + ` FROM notifications WHERE id = ?`)
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Notification record not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get notification record", err.Error())
	}
	return record, nil
}

// ListRecords retrieves records matching the filter
func (s *PostgresStore) ListRecords(ctx context.Context, filter models.RecordFilter) ([]*models.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications`
	where, args := buildFilter(filter, "?")
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list notification records", err.Error())
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountRecords counts records matching the filter
func (s *PostgresStore) CountRecords(ctx context.Context, filter models.RecordFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM notifications"
	where, args := buildFilter(filter, "?")
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, rebind(query), args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count notification records", err.Error())
	}
	return count, nil
}

// UpdateRecord persists the mutable fields of a record
func (s *PostgresStore) UpdateRecord(ctx context.Context, record *models.NotificationRecord) error {
	record.UpdatedAt = time.Now().UTC()
	query := rebind(`UPDATE notifications SET
		status = ?, attempt_count = ?, max_attempts = ?, next_attempt_at = ?,
		provider_message_id = ?, region = ?, last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query,
		record.Status, record.AttemptCount, record.MaxAttempts, nullTime(record.NextAttemptAt),
		record.ProviderMessageID, record.Region, nullString(record.LastError),
		nullTime(record.SentAt), record.UpdatedAt, record.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update notification record", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Notification record not found", record.ID)
	}
	return nil
}

// ClaimForSending atomically flips a claimable record to sending and bumps
// its attempt counter
func (s *PostgresStore) ClaimForSending(ctx context.Context, id string) (*models.NotificationRecord, error) {
	query := rebind(`UPDATE notifications
		SET status = 'sending', attempt_count = attempt_count + 1, updated_at = ?
		WHERE id = ? AND status IN (` + claimableStatuses + `)
		AND attempt_count < max_attempts`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim notification record", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, nil
	}
	return s.GetRecord(ctx, id)
}

// ListDue returns claimable records whose next attempt time has passed
func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	query := rebind(`SELECT ` + recordColumns + ` FROM notifications
		WHERE status IN (` + claimableStatuses + `)
		AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		AND attempt_count < max_attempts
		ORDER BY next_attempt_at ASC NULLS FIRST LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list due records", err.Error())
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ReclaimStuckSending resets records stuck in sending
func (s *PostgresStore) ReclaimStuckSending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := rebind(`UPDATE notifications
		SET status = CASE WHEN attempt_count >= max_attempts THEN 'failed_permanent' ELSE 'pending' END,
		next_attempt_at = CASE WHEN attempt_count >= max_attempts THEN NULL ELSE next_attempt_at END,
		last_error = 'reclaimed after stale sending', updated_at = ?
		WHERE status = 'sending' AND updated_at < ?`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to reclaim stuck records", err.Error())
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// RearmForRetry resets failed records under a business reference
func (s *PostgresStore) RearmForRetry(ctx context.Context, businessRef string) (int, error) {
	query := rebind(`UPDATE notifications
		SET status = 'pending', attempt_count = 0, next_attempt_at = NULL, updated_at = ?
		WHERE business_ref = ? AND status IN ('failed_temporary', 'failed_permanent')`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), businessRef)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to rearm records", err.Error())
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// CancelRecord cancels a record that has not reached a terminal state
func (s *PostgresStore) CancelRecord(ctx context.Context, id string) error {
	query := rebind(`UPDATE notifications SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status IN (` + claimableStatuses + `)`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cancel notification record", err.Error())
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "No cancellable record", id)
	}
	return nil
}

// Stats summarizes the notifications table
func (s *PostgresStore) Stats(ctx context.Context) (*models.RecordStats, error) {
	stats := &models.RecordStats{ByStatus: make(map[models.Status]int64)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM notifications GROUP BY status")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to compute record stats", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var status models.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan record stats", err.Error())
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read record stats", err.Error())
	}

	var oldest sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		"SELECT MIN(created_at) FROM notifications WHERE status = 'pending'").Scan(&oldest); err == nil && oldest.Valid {
		stats.OldestPending = &oldest.Time
	}
	var latest sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(sent_at) FROM notifications WHERE status = 'sent'").Scan(&latest); err == nil && latest.Valid {
		stats.LatestSent = &latest.Time
	}
	return stats, nil
}
