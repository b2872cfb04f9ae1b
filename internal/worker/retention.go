package worker

import (
	"context"
	"time"

	"salonflow/internal/changelog"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionWorker prunes the change log on a cron schedule. A failed
// cleanup is retried with backoff before waiting for the next run; clients
// slower than the retention window fall back to a full resync, so cleanup
// never coordinates with consumers.
type RetentionWorker struct {
	changes        *changelog.Service
	retentionHours int
	schedule       string
	retryPolicy    RetryPolicy
	logger         *zerolog.Logger
}

func NewRetentionWorker(changes *changelog.Service, retentionHours int, schedule string, retry RetryPolicy, logger *zerolog.Logger) *RetentionWorker {
	if schedule == "" {
		schedule = "@hourly"
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	return &RetentionWorker{
		changes:        changes,
		retentionHours: retentionHours,
		schedule:       schedule,
		retryPolicy:    retry,
		logger:         logger,
	}
}

// Start blocks until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(w.schedule, func() { w.RunOnce(ctx) })
	if err != nil {
		return err
	}

	w.logger.Info().
		Int("retention_hours", w.retentionHours).
		Str("schedule", w.schedule).
		Msg("retention worker started")

	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	w.logger.Info().Msg("retention worker stopped")
	return nil
}

// RunOnce performs a single cleanup pass with bounded retries.
func (w *RetentionWorker) RunOnce(ctx context.Context) {
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		_, err := w.changes.CleanupOlderThan(ctx, w.retentionHours)
		if err == nil {
			return
		}
		w.logger.Error().Err(err).Int("attempt", attempt).Msg("change-log cleanup failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryPolicy.NextDelay(attempt)):
		}
	}
}
