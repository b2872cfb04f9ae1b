// Package lifecycle validates and applies appointment status transitions.
// The progression pending -> confirmed -> checked-in -> completed is not
// enforced step by step: any non-terminal status may move to any other
// status, including the side exits cancelled and no-show. The three terminal
// statuses are absorbing.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"salonflow/internal/models"
)

var (
	// ErrInvalidTransition means the appointment already reached an
	// absorbing status. A user-visible rejection, not a transient fault.
	ErrInvalidTransition = errors.New("appointment status does not permit further transitions")

	// ErrUnknownStatus rejects a target status outside the known set.
	ErrUnknownStatus = errors.New("unknown appointment status")
)

// CanTransition reports whether an appointment in the given status may
// transition at all. Terminal statuses absorb: completed, cancelled and
// no-show always return false.
func CanTransition(current string) bool {
	return models.IsValidStatus(current) && !models.IsTerminalStatus(current)
}

// ApplyTransition moves appt to newStatus, appending to the status history.
// Transitioning to completed cascades: every service line on the appointment
// is forced to completed, since a finished appointment implies all rendered
// services are finished. The reverse direction never cascades.
func ApplyTransition(appt *models.Appointment, newStatus, actor string, now time.Time) error {
	if !models.IsValidStatus(newStatus) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}
	if !CanTransition(appt.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, newStatus)
	}

	appt.Status = newStatus
	appt.StatusHistory = append(appt.StatusHistory, models.StatusHistoryEntry{
		Status:    newStatus,
		Timestamp: now,
		UpdatedBy: actor,
	})

	if newStatus == models.StatusCompleted {
		for i := range appt.Services {
			appt.Services[i].Completed = true
		}
	}

	return nil
}

// EnsureHistory synthesizes the creation entry when an appointment was
// persisted before history tracking existed. History is never surfaced empty.
func EnsureHistory(appt *models.Appointment) {
	if len(appt.StatusHistory) > 0 {
		return
	}
	appt.StatusHistory = []models.StatusHistoryEntry{{
		Status:    models.StatusPending,
		Timestamp: appt.CreatedAt,
		UpdatedBy: models.SystemActor,
	}}
}
