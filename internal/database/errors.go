package database

import "errors"

var (
	// ErrConflict means the staff member is already occupied for the
	// requested interval. Surfaced to the caller, never retried.
	ErrConflict = errors.New("staff member is not available for the requested interval")

	// ErrNotFound means the referenced appointment or blocked-time entry
	// does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means a concurrent writer updated the appointment
	// between read and write. Callers may reload and re-validate.
	ErrVersionConflict = errors.New("appointment was modified concurrently")
)
