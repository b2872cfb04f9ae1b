package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonflow/internal/availability"
	"salonflow/internal/database"
	"salonflow/internal/domain"
	"salonflow/internal/events"
	"salonflow/internal/lifecycle"
	"salonflow/internal/metrics"
	"salonflow/internal/models"
	"salonflow/internal/reconcile"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrValidation marks a malformed request, rejected before any resolver or
// state-machine work.
var ErrValidation = errors.New("validation failed")

// transitionRetries bounds optimistic retries when a status transition loses
// a version race. Each retry reloads and re-validates, so the absorbing-state
// rule survives concurrent writers.
const transitionRetries = 3

// ServiceInput is one requested service line; the first input becomes the
// main service.
type ServiceInput struct {
	ServiceID       string  `json:"service_id"`
	StaffID         string  `json:"staff_id,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
}

// ProductInput is one requested product line.
type ProductInput struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// CreateRequest is a candidate booking.
type CreateRequest struct {
	ClientID        string         `json:"client_id"`
	StaffID         string         `json:"staff_id"`
	LocationID      string         `json:"location_id"`
	StartTime       time.Time      `json:"start_time"`
	DurationMinutes int            `json:"duration_minutes"`
	Notes           string         `json:"notes,omitempty"`
	Services        []ServiceInput `json:"services"`
	Products        []ProductInput `json:"products,omitempty"`
	ActorID         string         `json:"actor_id"`
}

type AppointmentService struct {
	repo     domain.Repository
	resolver *availability.Resolver
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewAppointmentService(repo domain.Repository, resolver *availability.Resolver, eventBus domain.EventPublisher, logger *zerolog.Logger) *AppointmentService {
	return &AppointmentService{
		repo:     repo,
		resolver: resolver,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *AppointmentService) validateCreate(req *CreateRequest) error {
	if req.ClientID == "" || req.StaffID == "" || req.LocationID == "" {
		return fmt.Errorf("%w: client_id, staff_id and location_id are required", ErrValidation)
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if req.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time is required", ErrValidation)
	}
	if len(req.Services) == 0 {
		return fmt.Errorf("%w: at least one service is required", ErrValidation)
	}
	seen := make(map[string]bool, len(req.Services))
	for _, svc := range req.Services {
		if svc.ServiceID == "" {
			return fmt.Errorf("%w: service_id is required on every service line", ErrValidation)
		}
		if seen[svc.ServiceID] {
			return fmt.Errorf("%w: duplicate service %s", ErrValidation, svc.ServiceID)
		}
		seen[svc.ServiceID] = true
	}
	return nil
}

// CreateAppointment books a candidate: validation first, then the
// availability resolver for every involved staff member, then a persisted
// insert that re-validates inside its transaction. The change log records
// the creation via the event bus.
func (s *AppointmentService) CreateAppointment(ctx context.Context, req *CreateRequest) (*models.Appointment, error) {
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	staffIDs := []string{req.StaffID}
	for _, svc := range req.Services {
		if svc.StaffID != "" && svc.StaffID != req.StaffID {
			staffIDs = append(staffIDs, svc.StaffID)
		}
	}
	for _, staffID := range staffIDs {
		conflict, err := s.resolver.HasConflict(ctx, staffID, req.StartTime, duration, "")
		if err != nil {
			return nil, err
		}
		if conflict {
			metrics.IncBookingConflict()
			return nil, database.ErrConflict
		}
	}

	appt := &models.Appointment{
		ID:               uuid.NewString(),
		BookingReference: newBookingReference(),
		ClientID:         req.ClientID,
		StaffID:          req.StaffID,
		LocationID:       req.LocationID,
		StartTime:        req.StartTime,
		DurationMinutes:  req.DurationMinutes,
		Status:           models.StatusPending,
		Notes:            req.Notes,
	}
	for i, svc := range req.Services {
		appt.Services = append(appt.Services, models.AppointmentService{
			ID:              uuid.NewString(),
			AppointmentID:   appt.ID,
			ServiceID:       svc.ServiceID,
			StaffID:         svc.StaffID,
			Price:           svc.Price,
			DurationMinutes: svc.DurationMinutes,
			Position:        i,
		})
	}
	for _, p := range req.Products {
		quantity := p.Quantity
		if quantity < 1 {
			quantity = 1
		}
		appt.Products = append(appt.Products, models.AppointmentProduct{
			ID:            uuid.NewString(),
			AppointmentID: appt.ID,
			ProductID:     p.ProductID,
			Quantity:      quantity,
			Price:         p.Price,
		})
	}

	if err := s.repo.CreateAppointmentWithLock(ctx, appt); err != nil {
		if errors.Is(err, database.ErrConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncAppointmentCreated()
	s.publishMutation(events.EventAppointmentCreated, models.EntityAppointment, appt.ID, models.ChangeCreate, appt.LocationID, req.ActorID)

	return appt, nil
}

// UpdateAppointmentStatus applies one transition through the state machine.
// Version races reload and re-validate, so a transition that became illegal
// in flight is rejected, not silently applied.
func (s *AppointmentService) UpdateAppointmentStatus(ctx context.Context, id, newStatus, actorID string) (*models.Appointment, error) {
	actor := actorID
	if actor == "" {
		actor = models.SystemActor
	}

	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		appt, err := s.repo.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}

		validated := *appt
		if err := lifecycle.ApplyTransition(&validated, newStatus, actor, time.Now()); err != nil {
			return nil, err
		}

		cascade := newStatus == models.StatusCompleted
		err = s.repo.ApplyStatusTransition(ctx, id, appt.Version, newStatus, actor, cascade)
		if errors.Is(err, database.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.IncStatusTransition(newStatus)
		s.publishMutation(events.EventStatusChanged, models.EntityAppointment, id, models.ChangeUpdate, appt.LocationID, actorID)

		return s.repo.GetAppointment(ctx, id)
	}
	return nil, lastErr
}

// UpdateAppointment merges a sparse patch through the reconciler, re-checks
// availability when the interval moved, and routes a status change through
// the state machine afterwards. Dropped lines come back as warnings.
func (s *AppointmentService) UpdateAppointment(ctx context.Context, id string, patch reconcile.UpdatePayload, actorID string) (*models.Appointment, []string, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if patch.DurationMinutes != nil && *patch.DurationMinutes <= 0 {
		return nil, nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if patch.Status != nil && !models.IsValidStatus(*patch.Status) {
		return nil, nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *patch.Status)
	}

	plan := reconcile.Reconcile(appt, patch)

	// A moved interval is a fresh candidate for the resolver, with the
	// appointment itself excluded from the scan. This rejects early and
	// cheaply; ApplyReconcilePlan re-validates inside its transaction.
	if patch.StartTime != nil || patch.DurationMinutes != nil {
		start := appt.StartTime
		if patch.StartTime != nil {
			start = *patch.StartTime
		}
		minutes := appt.DurationMinutes
		if patch.DurationMinutes != nil {
			minutes = *patch.DurationMinutes
		}
		conflict, err := s.resolver.HasConflict(ctx, appt.StaffID, start, time.Duration(minutes)*time.Minute, id)
		if err != nil {
			return nil, nil, err
		}
		if conflict {
			metrics.IncBookingConflict()
			return nil, nil, database.ErrConflict
		}
	}

	if !plan.IsNoop() {
		if err := s.repo.ApplyReconcilePlan(ctx, appt.Version, &plan); err != nil {
			return nil, nil, err
		}
		s.publishMutation(events.EventAppointmentUpdated, models.EntityAppointment, id, models.ChangeUpdate, appt.LocationID, actorID)
	}

	if patch.Status != nil && *patch.Status != appt.Status {
		if _, err := s.UpdateAppointmentStatus(ctx, id, *patch.Status, actorID); err != nil {
			return nil, plan.Warnings, err
		}
	}

	updated, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, plan.Warnings, err
	}
	return updated, plan.Warnings, nil
}

// ReassignStaff moves the appointment to a different primary staff member,
// re-running the availability check with the appointment excluded.
func (s *AppointmentService) ReassignStaff(ctx context.Context, id, newStaffID, actorID string) (*models.Appointment, error) {
	if newStaffID == "" {
		return nil, fmt.Errorf("%w: staff_id is required", ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		appt, err := s.repo.GetAppointment(ctx, id)
		if err != nil {
			return nil, err
		}
		if appt.StaffID == newStaffID {
			return appt, nil
		}

		err = s.repo.ReassignStaffWithLock(ctx, id, appt.Version, newStaffID)
		if errors.Is(err, database.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			if errors.Is(err, database.ErrConflict) {
				metrics.IncBookingConflict()
			}
			return nil, err
		}

		s.publishMutation(events.EventStaffReassigned, models.EntityAppointment, id, models.ChangeUpdate, appt.LocationID, actorID)
		return s.repo.GetAppointment(ctx, id)
	}
	return nil, lastErr
}

// DeleteAppointment removes the appointment. The change log records the
// deletion and outlives the entity it describes.
func (s *AppointmentService) DeleteAppointment(ctx context.Context, id, actorID string) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.publishMutation(events.EventAppointmentDeleted, models.EntityAppointment, id, models.ChangeDelete, appt.LocationID, actorID)
	return nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *AppointmentService) ListAppointmentsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]*models.Appointment, error) {
	return s.repo.ListAppointmentsByStaff(ctx, staffID, from, to)
}

// CheckStaffAvailability answers conflict / no conflict for a candidate.
func (s *AppointmentService) CheckStaffAvailability(ctx context.Context, staffID string, start time.Time, durationMinutes int, excludeAppointmentID string) (bool, error) {
	conflict, err := s.resolver.HasConflict(ctx, staffID, start, time.Duration(durationMinutes)*time.Minute, excludeAppointmentID)
	if errors.Is(err, availability.ErrInvalidCandidate) {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return conflict, err
}

// UnavailableStaff computes the staff subset that cannot take the interval.
func (s *AppointmentService) UnavailableStaff(ctx context.Context, staffIDs []string, start time.Time, durationMinutes int) ([]string, error) {
	unavailable, err := s.resolver.UnavailableStaff(ctx, staffIDs, start, time.Duration(durationMinutes)*time.Minute)
	if errors.Is(err, availability.ErrInvalidCandidate) {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return unavailable, err
}

func (s *AppointmentService) publishMutation(eventType, entityType, entityID, changeType, locationID, userID string) {
	err := s.eventBus.PublishJSON(eventType, events.MutationPayload{
		EntityType: entityType,
		EntityID:   entityID,
		ChangeType: changeType,
		LocationID: locationID,
		UserID:     userID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish mutation event")
	}
}

func newBookingReference() string {
	return "APT-" + strings.ToUpper(uuid.NewString()[:8])
}
