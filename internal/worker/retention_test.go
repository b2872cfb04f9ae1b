package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"salonflow/internal/changelog"
	"salonflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChangeStore struct {
	records     []models.ChangeRecord
	deleteCalls int
	failFirst   bool
}

func (s *stubChangeStore) InsertChangeRecord(_ context.Context, rec *models.ChangeRecord) error {
	s.records = append(s.records, *rec)
	return nil
}

func (s *stubChangeStore) ListChangesSince(context.Context, time.Time, []string, string, int) ([]models.ChangeRecord, error) {
	return nil, nil
}

func (s *stubChangeStore) LatestChangeTimestamp(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (s *stubChangeStore) DeleteChangesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleteCalls++
	if s.failFirst && s.deleteCalls == 1 {
		return 0, errors.New("database is locked")
	}
	var kept []models.ChangeRecord
	var deleted int64
	for _, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func newRetentionWorker(store *stubChangeStore, retentionHours int) *RetentionWorker {
	logger := zerolog.Nop()
	changes := changelog.NewService(store, 0, &logger)
	retry := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return NewRetentionWorker(changes, retentionHours, "@hourly", retry, &logger)
}

func TestRetentionWorker_RunOnce(t *testing.T) {
	store := &stubChangeStore{}
	require.NoError(t, store.InsertChangeRecord(context.Background(), &models.ChangeRecord{
		EntityID: "stale", Timestamp: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, store.InsertChangeRecord(context.Background(), &models.ChangeRecord{
		EntityID: "fresh", Timestamp: time.Now(),
	}))

	w := newRetentionWorker(store, 24)
	w.RunOnce(context.Background())

	require.Len(t, store.records, 1)
	assert.Equal(t, "fresh", store.records[0].EntityID)
}

func TestRetentionWorker_RetriesAfterFailure(t *testing.T) {
	store := &stubChangeStore{failFirst: true}
	require.NoError(t, store.InsertChangeRecord(context.Background(), &models.ChangeRecord{
		EntityID: "stale", Timestamp: time.Now().Add(-48 * time.Hour),
	}))

	w := newRetentionWorker(store, 24)
	w.RunOnce(context.Background())

	assert.Equal(t, 2, store.deleteCalls)
	assert.Empty(t, store.records)
}

func TestRetentionWorker_StartRejectsBadSchedule(t *testing.T) {
	store := &stubChangeStore{}
	logger := zerolog.Nop()
	changes := changelog.NewService(store, 0, &logger)
	w := NewRetentionWorker(changes, 24, "not a schedule", RetryPolicy{}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, w.Start(ctx))
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4), "clamped at max delay")
	assert.Equal(t, time.Second, policy.NextDelay(0), "attempts below one are clamped")
}

func TestRetryPolicy_ZeroValueDefaults(t *testing.T) {
	var policy RetryPolicy
	assert.Equal(t, time.Second, policy.NextDelay(1))
}
