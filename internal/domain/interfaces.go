package domain

import (
	"context"
	"time"

	"salonflow/internal/availability"
	"salonflow/internal/models"
	"salonflow/internal/reconcile"
)

// Repository is the persistence surface consumed by the service layer.
// Implemented by database.DB.
type Repository interface {
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error
	ApplyStatusTransition(ctx context.Context, id string, version int64, newStatus, actor string, cascadeComplete bool) error
	ReassignStaffWithLock(ctx context.Context, id string, version int64, newStaffID string) error
	ApplyReconcilePlan(ctx context.Context, version int64, plan *reconcile.Plan) error
	DeleteAppointment(ctx context.Context, id string) error
	ListAppointmentsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]*models.Appointment, error)

	StaffBusyIntervals(ctx context.Context, staffID, excludeAppointmentID string) ([]availability.Interval, error)

	CreateBlockedTime(ctx context.Context, entry *models.BlockedTimeEntry) error
	DeleteBlockedTime(ctx context.Context, id string) error
	ListBlockedTimes(ctx context.Context, staffID string, from, to time.Time) ([]models.BlockedTimeEntry, error)
}

// EventPublisher publishes domain events after successful mutations.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ClientStateRepository tracks per-API-client poll state: rate-limit
// counters and last-poll bookkeeping. Backed by redis with an in-memory
// fallback.
type ClientStateRepository interface {
	CheckRateLimit(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error)
	SetLastPoll(ctx context.Context, clientID string, cursor time.Time) error
	GetLastPoll(ctx context.Context, clientID string) (time.Time, error)
}
