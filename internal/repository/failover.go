package repository

import (
	"context"
	"sync/atomic"
	"time"

	"salonflow/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverClientStateRepository prefers the primary (redis) store and falls
// back to the in-memory one when the primary errors, probing for recovery
// after a minute.
type FailoverClientStateRepository struct {
	primary   domain.ClientStateRepository
	fallback  domain.ClientStateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverClientStateRepository(primary, fallback domain.ClientStateRepository, logger *zerolog.Logger) *FailoverClientStateRepository {
	return &FailoverClientStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverClientStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary client-state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverClientStateRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverClientStateRepository) CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		allowed, err := r.primary.CheckRateLimit(ctx, clientID, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, clientID, limit, window)
}

func (r *FailoverClientStateRepository) SetLastPoll(ctx context.Context, clientID string, cursor time.Time) error {
	if !r.isDown.Load() || r.shouldProbe() {
		err := r.primary.SetLastPoll(ctx, clientID, cursor)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetLastPoll(ctx, clientID, cursor)
}

func (r *FailoverClientStateRepository) GetLastPoll(ctx context.Context, clientID string) (time.Time, error) {
	if !r.isDown.Load() || r.shouldProbe() {
		cursor, err := r.primary.GetLastPoll(ctx, clientID)
		if err == nil {
			r.isDown.Store(false)
			return cursor, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetLastPoll(ctx, clientID)
}
