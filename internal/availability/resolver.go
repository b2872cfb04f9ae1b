// Package availability decides whether a staff member can be booked for a
// candidate time window. It is the single authority for the overlap rule:
// every booking and reassignment path goes through it.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrInvalidCandidate rejects candidate intervals with non-positive duration
// before any conflict scanning happens.
var ErrInvalidCandidate = errors.New("candidate duration must be positive")

// Interval is a half-open time window [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect. An interval
// that starts exactly when another ends does not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// BusyIntervalSource yields every interval occupying a staff member's
// calendar across all locations: appointments where the staff is primary or
// assigned to a service line (non-terminal statuses only), plus all blocked
// time. Each appointment contributes a single interval regardless of how
// many roles the staff holds on it.
type BusyIntervalSource interface {
	StaffBusyIntervals(ctx context.Context, staffID, excludeAppointmentID string) ([]Interval, error)
}

type Resolver struct {
	source BusyIntervalSource
	logger *zerolog.Logger
}

func NewResolver(source BusyIntervalSource, logger *zerolog.Logger) *Resolver {
	return &Resolver{source: source, logger: logger}
}

// HasConflict reports whether booking staffID for
// [start, start+duration) would collide with an existing commitment.
// excludeAppointmentID is skipped from the scan so an appointment can be
// re-checked against everything except itself during reassignment.
func (r *Resolver) HasConflict(ctx context.Context, staffID string, start time.Time, duration time.Duration, excludeAppointmentID string) (bool, error) {
	if duration <= 0 {
		return false, ErrInvalidCandidate
	}

	busy, err := r.source.StaffBusyIntervals(ctx, staffID, excludeAppointmentID)
	if err != nil {
		return false, err
	}

	candidate := Interval{Start: start, End: start.Add(duration)}
	for _, b := range busy {
		if candidate.Overlaps(b) {
			r.logger.Debug().
				Str("staff_id", staffID).
				Time("candidate_start", candidate.Start).
				Time("busy_start", b.Start).
				Msg("booking conflict detected")
			return true, nil
		}
	}
	return false, nil
}

// UnavailableStaff returns the subset of staffIDs that cannot take a booking
// of the given interval. It applies the exact single-staff check per staff
// member; there is no shortcut that would skip the cross-location union.
func (r *Resolver) UnavailableStaff(ctx context.Context, staffIDs []string, start time.Time, duration time.Duration) ([]string, error) {
	if duration <= 0 {
		return nil, ErrInvalidCandidate
	}

	var unavailable []string
	for _, staffID := range staffIDs {
		conflict, err := r.HasConflict(ctx, staffID, start, duration, "")
		if err != nil {
			return nil, err
		}
		if conflict {
			unavailable = append(unavailable, staffID)
		}
	}
	return unavailable, nil
}
