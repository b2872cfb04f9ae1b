package models

import "time"

// BlockedTimeEntry reserves a staff interval with no client attached.
// It always counts as a conflict, regardless of appointment statuses.
type BlockedTimeEntry struct {
	ID              string    `json:"id"`
	StaffID         string    `json:"staff_id"`
	LocationID      string    `json:"location_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (b *BlockedTimeEntry) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}
