package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db         *sql.DB
	config     *StoreConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(config *StoreConfig) *SQLiteStore {
	return &SQLiteStore{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStore) Connect() error {
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" && !strings.HasPrefix(s.config.ConnectionString, ":memory:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate applies pending migrations in order
func (s *SQLiteStore) Migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, m := range s.migrations {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", m.Version), err.Error())
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}
		s.logger.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
		}).Info("Migration applied")
	}
	return nil
}

const recordColumns = `id, user_id, recipient_name, phone, email, channel, category, message,
	media_url, sender_role, business_ref, status, attempt_count, max_attempts, next_attempt_at,
	provider_message_id, region, last_error, created_at, sent_at, updated_at`

// CreateRecord inserts a new notification record
func (s *SQLiteStore) CreateRecord(ctx context.Context, record *models.NotificationRecord) error {
	query := `INSERT INTO notifications (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*models.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = ?`
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
func (s *SQLiteStore) ListRecords(ctx context.Context, filter models.RecordFilter) ([]*models.NotificationRecord, error) {
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

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list notification records", err.Error())
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountRecords counts records matching the filter
func (s *SQLiteStore) CountRecords(ctx context.Context, filter models.RecordFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM notifications"
	where, args := buildFilter(filter, "?")
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count notification records", err.Error())
	}
	return count, nil
}

// UpdateRecord persists the mutable fields of a record
func (s *SQLiteStore) UpdateRecord(ctx context.Context, record *models.NotificationRecord) error {
	record.UpdatedAt = time.Now().UTC()
	query := `UPDATE notifications SET
		status = ?, attempt_count = ?, max_attempts = ?, next_attempt_at = ?,
		provider_message_id = ?, region = ?, last_error = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`

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
// its attempt counter. The status column acts as the claim lock.
func (s *SQLiteStore) ClaimForSending(ctx context.Context, id string) (*models.NotificationRecord, error) {
	query := `UPDATE notifications
		SET status = 'sending', attempt_count = attempt_count + 1, updated_at = ?
		WHERE id = ? AND status IN (` + claimableStatuses + `)
		AND attempt_count < max_attempts`

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
func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications
		WHERE status IN (` + claimableStatuses + `)
		AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		AND attempt_count < max_attempts
		ORDER BY next_attempt_at ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list due records", err.Error())
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ReclaimStuckSending resets records stuck in sending, so a crashed worker
// cannot strand a record forever. A record that already spent its attempt
// budget goes to failed_permanent instead of back into rotation.
func (s *SQLiteStore) ReclaimStuckSending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `UPDATE notifications
		SET status = CASE WHEN attempt_count >= max_attempts THEN 'failed_permanent' ELSE 'pending' END,
		next_attempt_at = CASE WHEN attempt_count >= max_attempts THEN NULL ELSE next_attempt_at END,
		last_error = 'reclaimed after stale sending', updated_at = ?
		WHERE status = 'sending' AND updated_at < ?`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to reclaim stuck records", err.Error())
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// RearmForRetry resets failed records under a business reference for a fresh
// delivery cycle
func (s *SQLiteStore) RearmForRetry(ctx context.Context, businessRef string) (int, error) {
	query := `UPDATE notifications
		SET status = 'pending', attempt_count = 0, next_attempt_at = NULL, updated_at = ?
		WHERE business_ref = ? AND status IN ('failed_temporary', 'failed_permanent')`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), businessRef)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to rearm records", err.Error())
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// CancelRecord cancels a record that has not reached a terminal state
func (s *SQLiteStore) CancelRecord(ctx context.Context, id string) error {
	query := `UPDATE notifications SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status IN (` + claimableStatuses + `)`

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
func (s *SQLiteStore) Stats(ctx context.Context) (*models.RecordStats, error) {
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

// scanner abstracts sql.Row and sql.Rows for record scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.NotificationRecord, error) {
	var record models.NotificationRecord
	var nextAttempt, sentAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&record.ID, &record.Recipient.UserID, &record.Recipient.Name, &record.Recipient.Phone,
		&record.Recipient.Email, &record.Channel, &record.Category, &record.Message,
		&record.MediaURL, &record.SenderRole, &record.BusinessRef, &record.Status, &record.AttemptCount,
		&record.MaxAttempts, &nextAttempt, &record.ProviderMessageID, &record.Region,
		&lastError, &record.CreatedAt, &sentAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if nextAttempt.Valid {
		record.NextAttemptAt = &nextAttempt.Time
	}
	if sentAt.Valid {
		record.SentAt = &sentAt.Time
	}
	if lastError.Valid {
		record.LastError = &lastError.String
	}
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*models.NotificationRecord, error) {
	var records []*models.NotificationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan notification record", err.Error())
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read notification records", err.Error())
	}
	return records, nil
}

// buildFilter renders the WHERE clause for a record filter. placeholder is
// "?" for SQLite; Postgres rewrites positional markers afterwards.
func buildFilter(filter models.RecordFilter, placeholder string) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(column string, value interface{}) {
		conditions = append(conditions, column+" = "+placeholder)
		args = append(args, value)
	}

	if filter.Status != nil {
		add("status", *filter.Status)
	}
	if filter.Channel != nil {
		add("channel", *filter.Channel)
	}
	if filter.Category != nil {
		add("category", *filter.Category)
	}
	if filter.Region != nil {
		add("region", *filter.Region)
	}
	if filter.BusinessRef != nil {
		add("business_ref", *filter.BusinessRef)
	}
	return strings.Join(conditions, " AND "), args
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
