package service

import (
	"context"
	"fmt"
	"time"

	"salonflow/internal/domain"
	"salonflow/internal/events"
	"salonflow/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BlockedTimeRequest reserves a staff interval with no client.
type BlockedTimeRequest struct {
	StaffID         string    `json:"staff_id"`
	LocationID      string    `json:"location_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason,omitempty"`
	ActorID         string    `json:"actor_id"`
}

type BlockedTimeService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBlockedTimeService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *BlockedTimeService {
	return &BlockedTimeService{repo: repo, eventBus: eventBus, logger: logger}
}

// CreateBlockedTime records the entry. Blocked time is always a conflict
// source, so it intentionally skips the availability resolver: blocking over
// an existing appointment is a business decision, not a booking.
func (s *BlockedTimeService) CreateBlockedTime(ctx context.Context, req *BlockedTimeRequest) (*models.BlockedTimeEntry, error) {
	if req.StaffID == "" || req.LocationID == "" {
		return nil, fmt.Errorf("%w: staff_id and location_id are required", ErrValidation)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if req.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time is required", ErrValidation)
	}

	entry := &models.BlockedTimeEntry{
		ID:              uuid.NewString(),
		StaffID:         req.StaffID,
		LocationID:      req.LocationID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
	}
	if err := s.repo.CreateBlockedTime(ctx, entry); err != nil {
		return nil, err
	}

	s.publishMutation(events.EventBlockedTimeCreated, entry.ID, models.ChangeCreate, entry.LocationID, req.ActorID)
	return entry, nil
}

func (s *BlockedTimeService) DeleteBlockedTime(ctx context.Context, id, actorID string) error {
	if err := s.repo.DeleteBlockedTime(ctx, id); err != nil {
		return err
	}
	s.publishMutation(events.EventBlockedTimeDeleted, id, models.ChangeDelete, "", actorID)
	return nil
}

func (s *BlockedTimeService) ListBlockedTimes(ctx context.Context, staffID string, from, to time.Time) ([]models.BlockedTimeEntry, error) {
	return s.repo.ListBlockedTimes(ctx, staffID, from, to)
}

func (s *BlockedTimeService) publishMutation(eventType, entityID, changeType, locationID, userID string) {
	err := s.eventBus.PublishJSON(eventType, events.MutationPayload{
		EntityType: models.EntityBlockedTime,
		EntityID:   entityID,
		ChangeType: changeType,
		LocationID: locationID,
		UserID:     userID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish mutation event")
	}
}
