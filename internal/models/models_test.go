package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentEndTime(t *testing.T) {
	start := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	appt := &Appointment{StartTime: start, DurationMinutes: 90}
	assert.True(t, appt.EndTime().Equal(start.Add(90*time.Minute)))
}

func TestAppointmentMainService(t *testing.T) {
	appt := &Appointment{
		Services: []AppointmentService{
			{ServiceID: "svc-extra", Position: 1},
			{ServiceID: "svc-main", Position: 0},
		},
	}
	main := appt.MainService()
	require.NotNil(t, main)
	assert.Equal(t, "svc-main", main.ServiceID)

	assert.Nil(t, (&Appointment{}).MainService())
}

func TestAppointmentIsTerminal(t *testing.T) {
	assert.False(t, (&Appointment{Status: StatusPending}).IsTerminal())
	assert.True(t, (&Appointment{Status: StatusNoShow}).IsTerminal())
}

func TestStatusHelpers(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("archived"))
	assert.False(t, IsValidStatus(""))

	assert.True(t, IsTerminalStatus(StatusCompleted))
	assert.True(t, IsTerminalStatus(StatusCancelled))
	assert.True(t, IsTerminalStatus(StatusNoShow))
	assert.False(t, IsTerminalStatus(StatusCheckedIn))
}

func TestChangeRecordIsGlobal(t *testing.T) {
	assert.True(t, (&ChangeRecord{}).IsGlobal())
	assert.False(t, (&ChangeRecord{LocationID: "loc-1"}).IsGlobal())
}
