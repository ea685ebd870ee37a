package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s := NewSQLiteStore(&StoreConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "notifications.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, s.Connect())
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) *models.NotificationRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.NotificationRecord{
		ID: id,
		Recipient: models.Recipient{
			UserID: "user-1",
			Name:   "Aminata Diallo",
			Phone:  "+22376123456",
			Email:  "aminata@example.com",
		},
		Channel:     models.ChannelWhatsApp,
		Category:    models.CategoryParcelArrived,
		Message:     "Votre colis est arrive",
		SenderRole:  "agent_mali",
		BusinessRef: "lot-42",
		Status:      models.StatusPending,
		MaxAttempts: 10,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, record))

	got, err := s.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Recipient, got.Recipient)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Nil(t, got.NextAttemptAt)
	assert.Nil(t, got.LastError)
}

func TestGetRecordNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecord(context.Background(), "missing")
	require.Error(t, err)
	appErr, ok := err.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeNotFound, appErr.Code)
}

func TestClaimForSending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, record))

	claimed, err := s.ClaimForSending(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.StatusSending, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)

	// A record already in sending cannot be claimed again.
	second, err := s.ClaimForSending(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestClaimForSendingSkipsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	record.Status = models.StatusSent
	require.NoError(t, s.CreateRecord(ctx, record))

	claimed, err := s.ClaimForSending(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimFailedTemporary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	record.Status = models.StatusFailedTemporary
	record.AttemptCount = 2
	require.NoError(t, s.CreateRecord(ctx, record))

	claimed, err := s.ClaimForSending(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 3, claimed.AttemptCount)
}

func TestListDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ready := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, ready))

	past := now.Add(-time.Hour)
	retryReady := sampleRecord(utils.GenerateID())
	retryReady.Status = models.StatusFailedTemporary
	retryReady.NextAttemptAt = &past
	require.NoError(t, s.CreateRecord(ctx, retryReady))

	future := now.Add(time.Hour)
	notYet := sampleRecord(utils.GenerateID())
	notYet.Status = models.StatusFailedTemporary
	notYet.NextAttemptAt = &future
	require.NoError(t, s.CreateRecord(ctx, notYet))

	done := sampleRecord(utils.GenerateID())
	done.Status = models.StatusSent
	require.NoError(t, s.CreateRecord(ctx, done))

	due, err := s.ListDue(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, due, 2)

	ids := []string{due[0].ID, due[1].ID}
	assert.Contains(t, ids, ready.ID)
	assert.Contains(t, ids, retryReady.ID)
}

func TestReclaimStuckSending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stuck := sampleRecord(utils.GenerateID())
	stuck.Status = models.StatusSending
	stuck.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateRecord(ctx, stuck))

	fresh := sampleRecord(utils.GenerateID())
	fresh.Status = models.StatusSending
	require.NoError(t, s.CreateRecord(ctx, fresh))

	n, err := s.ReclaimStuckSending(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRecord(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	require.NotNil(t, got.LastError)

	untouched, err := s.GetRecord(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSending, untouched.Status)
}

func TestReclaimExhaustedRecordGoesPermanent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stuck := sampleRecord(utils.GenerateID())
	stuck.Status = models.StatusSending
	stuck.MaxAttempts = 3
	stuck.AttemptCount = 3
	stuck.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateRecord(ctx, stuck))

	n, err := s.ReclaimStuckSending(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRecord(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailedPermanent, got.Status)
	assert.Nil(t, got.NextAttemptAt)
	assert.Equal(t, 3, got.AttemptCount)

	// Neither the sweep nor a direct claim may run it again.
	due, err := s.ListDue(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Empty(t, due)

	claimed, err := s.ClaimForSending(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestClaimStopsAtAttemptCeiling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	record.Status = models.StatusFailedTemporary
	record.MaxAttempts = 2
	record.AttemptCount = 2
	require.NoError(t, s.CreateRecord(ctx, record))

	claimed, err := s.ClaimForSending(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, claimed)

	got, err := s.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
}

func TestListDueOrdersByNextAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	later := sampleRecord(utils.GenerateID())
	later.Status = models.StatusFailedTemporary
	recent := now.Add(-time.Minute)
	later.NextAttemptAt = &recent
	require.NoError(t, s.CreateRecord(ctx, later))

	earlier := sampleRecord(utils.GenerateID())
	earlier.Status = models.StatusFailedTemporary
	old := now.Add(-2 * time.Hour)
	earlier.NextAttemptAt = &old
	require.NoError(t, s.CreateRecord(ctx, earlier))

	// Under batch-limit pressure the earliest-due record wins.
	due, err := s.ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, earlier.ID, due[0].ID)
}

func TestRearmForRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	failed := sampleRecord(utils.GenerateID())
	failed.Status = models.StatusFailedPermanent
	failed.AttemptCount = 10
	require.NoError(t, s.CreateRecord(ctx, failed))

	sent := sampleRecord(utils.GenerateID())
	sent.Status = models.StatusSent
	require.NoError(t, s.CreateRecord(ctx, sent))

	n, err := s.RearmForRetry(ctx, "lot-42")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetRecord(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Nil(t, got.NextAttemptAt)
}

func TestCancelRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, record))
	require.NoError(t, s.CancelRecord(ctx, record.ID))

	got, err := s.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	// Cancelled is terminal; a second cancel finds nothing to flip.
	err = s.CancelRecord(ctx, record.ID)
	require.Error(t, err)
}

func TestListRecordsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, first))

	second := sampleRecord(utils.GenerateID())
	second.Status = models.StatusFailedPermanent
	second.BusinessRef = "lot-43"
	require.NoError(t, s.CreateRecord(ctx, second))

	status := models.StatusFailedPermanent
	records, err := s.ListRecords(ctx, models.RecordFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second.ID, records[0].ID)

	ref := "lot-42"
	records, err = s.ListRecords(ctx, models.RecordFilter{BusinessRef: &ref})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ID, records[0].ID)

	count, err := s.CountRecords(ctx, models.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUpdateRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := sampleRecord(utils.GenerateID())
	require.NoError(t, s.CreateRecord(ctx, record))

	sentAt := time.Now().UTC().Truncate(time.Second)
	record.Status = models.StatusSent
	record.ProviderMessageID = "abc123"
	record.Region = "mali"
	record.SentAt = &sentAt
	require.NoError(t, s.UpdateRecord(ctx, record))

	got, err := s.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
	assert.Equal(t, "abc123", got.ProviderMessageID)
	assert.Equal(t, "mali", got.Region)
	require.NotNil(t, got.SentAt)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateRecord(ctx, sampleRecord(utils.GenerateID())))
	}
	sent := sampleRecord(utils.GenerateID())
	sent.Status = models.StatusSent
	now := time.Now().UTC()
	sent.SentAt = &now
	require.NoError(t, s.CreateRecord(ctx, sent))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.ByStatus[models.StatusPending])
	assert.Equal(t, int64(1), stats.ByStatus[models.StatusSent])
	require.NotNil(t, stats.OldestPending)
	require.NotNil(t, stats.LatestSent)
}
