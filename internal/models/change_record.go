package models

import "time"

// ChangeRecord is one append-only entry in the change log. A record with an
// empty LocationID is global and visible to every poller. Records are never
// mutated; they leave the log only through retention cleanup.
type ChangeRecord struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ChangeType string    `json:"change_type"`
	LocationID string    `json:"location_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsGlobal reports whether the record passes every location filter.
func (c *ChangeRecord) IsGlobal() bool {
	return c.LocationID == ""
}
