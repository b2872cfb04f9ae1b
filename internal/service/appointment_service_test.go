package service

import (
	"context"
	"testing"
	"time"

	"salonflow/internal/availability"
	"salonflow/internal/database"
	"salonflow/internal/lifecycle"
	"salonflow/internal/models"
	"salonflow/internal/reconcile"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockRepo) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error {
	return m.Called(ctx, appt).Error(0)
}
func (m *mockRepo) ApplyStatusTransition(ctx context.Context, id string, version int64, newStatus, actor string, cascadeComplete bool) error {
	return m.Called(ctx, id, version, newStatus, actor, cascadeComplete).Error(0)
}
func (m *mockRepo) ReassignStaffWithLock(ctx context.Context, id string, version int64, newStaffID string) error {
	return m.Called(ctx, id, version, newStaffID).Error(0)
}
func (m *mockRepo) ApplyReconcilePlan(ctx context.Context, version int64, plan *reconcile.Plan) error {
	return m.Called(ctx, version, plan).Error(0)
}
func (m *mockRepo) DeleteAppointment(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) ListAppointmentsByStaff(ctx context.Context, staffID string, from, to time.Time) ([]*models.Appointment, error) {
	args := m.Called(ctx, staffID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}
func (m *mockRepo) StaffBusyIntervals(ctx context.Context, staffID, excludeAppointmentID string) ([]availability.Interval, error) {
	args := m.Called(ctx, staffID, excludeAppointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]availability.Interval), args.Error(1)
}
func (m *mockRepo) CreateBlockedTime(ctx context.Context, entry *models.BlockedTimeEntry) error {
	return m.Called(ctx, entry).Error(0)
}
func (m *mockRepo) DeleteBlockedTime(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) ListBlockedTimes(ctx context.Context, staffID string, from, to time.Time) ([]models.BlockedTimeEntry, error) {
	args := m.Called(ctx, staffID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BlockedTimeEntry), args.Error(1)
}

type mockPublisher struct {
	events []string
}

func (p *mockPublisher) PublishJSON(eventType string, _ interface{}) error {
	p.events = append(p.events, eventType)
	return nil
}

func newTestService(repo *mockRepo) (*AppointmentService, *mockPublisher) {
	logger := zerolog.Nop()
	publisher := &mockPublisher{}
	resolver := availability.NewResolver(repo, &logger)
	return NewAppointmentService(repo, resolver, publisher, &logger), publisher
}

func validCreateRequest() *CreateRequest {
	return &CreateRequest{
		ClientID:        "client-1",
		StaffID:         "staff-1",
		LocationID:      "loc-1",
		StartTime:       time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Services: []ServiceInput{
			{ServiceID: "svc-haircut", Price: 50, DurationMinutes: 60},
		},
		ActorID: "admin-1",
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing client", func(r *CreateRequest) { r.ClientID = "" }},
		{"missing staff", func(r *CreateRequest) { r.StaffID = "" }},
		{"missing location", func(r *CreateRequest) { r.LocationID = "" }},
		{"zero duration", func(r *CreateRequest) { r.DurationMinutes = 0 }},
		{"negative duration", func(r *CreateRequest) { r.DurationMinutes = -30 }},
		{"zero start time", func(r *CreateRequest) { r.StartTime = time.Time{} }},
		{"no services", func(r *CreateRequest) { r.Services = nil }},
		{"service without id", func(r *CreateRequest) { r.Services[0].ServiceID = "" }},
		{"duplicate service id", func(r *CreateRequest) {
			r.Services = append(r.Services, ServiceInput{ServiceID: "svc-haircut", Price: 50, DurationMinutes: 30})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(req)
			_, err := svc.CreateAppointment(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	repo.AssertNotCalled(t, "CreateAppointmentWithLock", mock.Anything, mock.Anything)
}

func TestCreateAppointment_Success(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	repo.On("StaffBusyIntervals", mock.Anything, "staff-1", "").Return([]availability.Interval{}, nil)
	repo.On("CreateAppointmentWithLock", mock.Anything, mock.AnythingOfType("*models.Appointment")).Return(nil)

	appt, err := svc.CreateAppointment(ctx, validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, appt.ID)
	assert.NotEmpty(t, appt.BookingReference)
	assert.Equal(t, models.StatusPending, appt.Status)
	require.Len(t, appt.Services, 1)
	assert.Equal(t, 0, appt.Services[0].Position)
	assert.Equal(t, []string{"appointment_created"}, publisher.events)
	repo.AssertExpectations(t)
}

func TestCreateAppointment_ResolverConflict(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	req := validCreateRequest()
	busy := []availability.Interval{{
		Start: req.StartTime.Add(-30 * time.Minute),
		End:   req.StartTime.Add(30 * time.Minute),
	}}
	repo.On("StaffBusyIntervals", mock.Anything, "staff-1", "").Return(busy, nil)

	_, err := svc.CreateAppointment(ctx, req)
	assert.ErrorIs(t, err, database.ErrConflict)
	assert.Empty(t, publisher.events)
	repo.AssertNotCalled(t, "CreateAppointmentWithLock", mock.Anything, mock.Anything)
}

func TestCreateAppointment_ChecksServiceLineStaff(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	req := validCreateRequest()
	req.Services = append(req.Services, ServiceInput{
		ServiceID: "svc-color", StaffID: "staff-2", Price: 80, DurationMinutes: 60,
	})

	repo.On("StaffBusyIntervals", mock.Anything, "staff-1", "").Return([]availability.Interval{}, nil)
	busy := []availability.Interval{{Start: req.StartTime, End: req.StartTime.Add(time.Hour)}}
	repo.On("StaffBusyIntervals", mock.Anything, "staff-2", "").Return(busy, nil)

	_, err := svc.CreateAppointment(ctx, req)
	assert.ErrorIs(t, err, database.ErrConflict)
}

func TestUpdateAppointmentStatus_Success(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusPending, Version: 1, LocationID: "loc-1"}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(1), models.StatusConfirmed, "admin-1", false).Return(nil)

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", models.StatusConfirmed, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"appointment_status_changed"}, publisher.events)
}

func TestUpdateAppointmentStatus_CompletedCascades(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusCheckedIn, Version: 3}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(3), models.StatusCompleted, "admin-1", true).Return(nil)

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", models.StatusCompleted, "admin-1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateAppointmentStatus_TerminalRejected(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusCancelled, Version: 2}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", models.StatusConfirmed, "admin-1")
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	assert.Empty(t, publisher.events)
	repo.AssertNotCalled(t, "ApplyStatusTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAppointmentStatus_RetriesOnVersionConflict(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	stale := &models.Appointment{ID: "appt-1", Status: models.StatusPending, Version: 1}
	fresh := &models.Appointment{ID: "appt-1", Status: models.StatusPending, Version: 2}

	repo.On("GetAppointment", mock.Anything, "appt-1").Return(stale, nil).Once()
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(1), models.StatusConfirmed, "admin-1", false).
		Return(database.ErrVersionConflict).Once()
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(fresh, nil)
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(2), models.StatusConfirmed, "admin-1", false).
		Return(nil).Once()

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", models.StatusConfirmed, "admin-1")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateAppointmentStatus_EmptyActorBecomesSystem(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusPending, Version: 1}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(1), models.StatusConfirmed, models.SystemActor, false).Return(nil)

	_, err := svc.UpdateAppointmentStatus(ctx, "appt-1", models.StatusConfirmed, "")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUpdateAppointment_MovedIntervalRechecked(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	appt := &models.Appointment{
		ID: "appt-1", StaffID: "staff-1", Status: models.StatusConfirmed,
		StartTime: start, DurationMinutes: 60, Version: 1,
	}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)

	newStart := start.Add(2 * time.Hour)
	busy := []availability.Interval{{Start: newStart, End: newStart.Add(time.Hour)}}
	repo.On("StaffBusyIntervals", mock.Anything, "staff-1", "appt-1").Return(busy, nil)

	_, _, err := svc.UpdateAppointment(ctx, "appt-1", reconcile.UpdatePayload{StartTime: &newStart}, "admin-1")
	assert.ErrorIs(t, err, database.ErrConflict)
	repo.AssertNotCalled(t, "ApplyReconcilePlan", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAppointment_NoopSkipsPersistence(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusConfirmed, Version: 1}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)

	_, warnings, err := svc.UpdateAppointment(ctx, "appt-1", reconcile.UpdatePayload{}, "admin-1")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, publisher.events)
	repo.AssertNotCalled(t, "ApplyReconcilePlan", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAppointment_StatusRoutedThroughStateMachine(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusConfirmed, Version: 1, LocationID: "loc-1"}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
	repo.On("ApplyStatusTransition", mock.Anything, "appt-1", int64(1), models.StatusCheckedIn, "admin-1", false).Return(nil)

	status := models.StatusCheckedIn
	_, _, err := svc.UpdateAppointment(ctx, "appt-1", reconcile.UpdatePayload{Status: &status}, "admin-1")
	require.NoError(t, err)
	assert.Contains(t, publisher.events, "appointment_status_changed")
}

func TestUpdateAppointment_UnknownStatusRejected(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", Status: models.StatusConfirmed, Version: 1}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)

	status := "archived"
	_, _, err := svc.UpdateAppointment(ctx, "appt-1", reconcile.UpdatePayload{Status: &status}, "admin-1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReassignStaff(t *testing.T) {
	ctx := context.Background()

	t.Run("same staff is a no-op", func(t *testing.T) {
		repo := &mockRepo{}
		svc, publisher := newTestService(repo)

		appt := &models.Appointment{ID: "appt-1", StaffID: "staff-1", Version: 1}
		repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)

		got, err := svc.ReassignStaff(ctx, "appt-1", "staff-1", "admin-1")
		require.NoError(t, err)
		assert.Equal(t, "staff-1", got.StaffID)
		assert.Empty(t, publisher.events)
		repo.AssertNotCalled(t, "ReassignStaffWithLock", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("moves and publishes", func(t *testing.T) {
		repo := &mockRepo{}
		svc, publisher := newTestService(repo)

		appt := &models.Appointment{ID: "appt-1", StaffID: "staff-1", Version: 1, LocationID: "loc-1"}
		repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
		repo.On("ReassignStaffWithLock", mock.Anything, "appt-1", int64(1), "staff-2").Return(nil)

		_, err := svc.ReassignStaff(ctx, "appt-1", "staff-2", "admin-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"appointment_staff_reassigned"}, publisher.events)
	})

	t.Run("missing staff id", func(t *testing.T) {
		repo := &mockRepo{}
		svc, _ := newTestService(repo)

		_, err := svc.ReassignStaff(ctx, "appt-1", "", "admin-1")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDeleteAppointment_PublishesDeletion(t *testing.T) {
	repo := &mockRepo{}
	svc, publisher := newTestService(repo)
	ctx := context.Background()

	appt := &models.Appointment{ID: "appt-1", LocationID: "loc-1"}
	repo.On("GetAppointment", mock.Anything, "appt-1").Return(appt, nil)
	repo.On("DeleteAppointment", mock.Anything, "appt-1").Return(nil)

	require.NoError(t, svc.DeleteAppointment(ctx, "appt-1", "admin-1"))
	assert.Equal(t, []string{"appointment_deleted"}, publisher.events)
}

func TestCheckStaffAvailability_InvalidDuration(t *testing.T) {
	repo := &mockRepo{}
	svc, _ := newTestService(repo)

	_, err := svc.CheckStaffAvailability(context.Background(), "staff-1", time.Now(), 0, "")
	assert.ErrorIs(t, err, ErrValidation)
}
