// Package changelog implements the poll-based synchronization protocol.
// Every mutation lands in an append-only log; disconnected clients converge
// by polling with a timestamp cursor. Recording is best-effort observability,
// never a transactional ledger: a failed append is logged and swallowed.
package changelog

import (
	"context"
	"encoding/json"
	"time"

	"salonflow/internal/events"
	"salonflow/internal/metrics"
	"salonflow/internal/models"

	"github.com/rs/zerolog"
)

// Store is the persistence surface the protocol needs.
type Store interface {
	InsertChangeRecord(ctx context.Context, rec *models.ChangeRecord) error
	ListChangesSince(ctx context.Context, cursor time.Time, entityTypes []string, locationID string, limit int) ([]models.ChangeRecord, error)
	LatestChangeTimestamp(ctx context.Context) (time.Time, error)
	DeleteChangesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Page is one poll response. NextCursor feeds the next poll; HasMore tells
// the client to poll again immediately instead of waiting its interval.
type Page struct {
	Changes    []models.ChangeRecord `json:"changes"`
	NextCursor time.Time             `json:"timestamp"`
	HasMore    bool                  `json:"has_more"`
}

type Service struct {
	store     Store
	pollLimit int
	logger    *zerolog.Logger
}

// NewService builds the protocol service. pollLimit caps the page size
// clients may request; non-positive values fall back to the default.
func NewService(store Store, pollLimit int, logger *zerolog.Logger) *Service {
	if pollLimit <= 0 {
		pollLimit = models.DefaultPollLimit
	}
	return &Service{store: store, pollLimit: pollLimit, logger: logger}
}

// RecordChange appends one record, fire-and-forget. Errors never propagate
// to the triggering mutation.
func (s *Service) RecordChange(ctx context.Context, entityType, entityID, changeType, locationID, userID string) {
	rec := &models.ChangeRecord{
		EntityType: entityType,
		EntityID:   entityID,
		ChangeType: changeType,
		LocationID: locationID,
		UserID:     userID,
		Timestamp:  time.Now(),
	}
	if err := s.store.InsertChangeRecord(ctx, rec); err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Str("change_type", changeType).
			Msg("failed to record change")
		return
	}
	metrics.IncChangeRecorded()
}

// SubscribeTo wires the recorder to the event bus: every published mutation
// event becomes a change record. The bus already drops handler errors, so
// recording is structurally unable to fail a mutation.
func (s *Service) SubscribeTo(bus *events.EventBus) {
	bus.SubscribeAll(func(event *events.Event) error {
		var payload events.MutationPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to decode mutation event")
			return err
		}
		s.RecordChange(context.Background(), payload.EntityType, payload.EntityID, payload.ChangeType, payload.LocationID, payload.UserID)
		return nil
	})
}

// PollSince serves one page of changes strictly after the cursor. A nil
// cursor establishes a baseline: the caller gets the latest log timestamp
// and no changes, without replaying history. NextCursor is the timestamp of
// the last returned record, or the input cursor when nothing matched.
func (s *Service) PollSince(ctx context.Context, cursor *time.Time, entityTypes []string, locationID string, limit int) (*Page, error) {
	if limit <= 0 || limit > s.pollLimit {
		limit = s.pollLimit
	}

	if cursor == nil {
		latest, err := s.store.LatestChangeTimestamp(ctx)
		if err != nil {
			return nil, err
		}
		if latest.IsZero() {
			latest = time.Now()
		}
		return &Page{Changes: []models.ChangeRecord{}, NextCursor: latest}, nil
	}

	changes, err := s.store.ListChangesSince(ctx, *cursor, entityTypes, locationID, limit)
	if err != nil {
		return nil, err
	}
	metrics.IncPollServed()

	next := *cursor
	if len(changes) > 0 {
		next = changes[len(changes)-1].Timestamp
	}

	return &Page{
		Changes:    changes,
		NextCursor: next,
		HasMore:    len(changes) == limit,
	}, nil
}

// CleanupOlderThan deletes records past the retention window. Deletion is
// unconditional; a client that slept longer than the window must full-resync.
func (s *Service) CleanupOlderThan(ctx context.Context, retentionHours int) (int64, error) {
	if retentionHours <= 0 {
		retentionHours = models.DefaultRetentionHours
	}
	cutoff := time.Now().Add(-time.Duration(retentionHours) * time.Hour)

	deleted, err := s.store.DeleteChangesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		metrics.AddChangesCleaned(deleted)
		s.logger.Info().Int64("deleted", deleted).Int("retention_hours", retentionHours).Msg("change log cleaned up")
	}
	return deleted, nil
}
