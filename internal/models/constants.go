package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked-in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

// AllStatuses lists every legal appointment status.
var AllStatuses = []string{
	StatusPending,
	StatusConfirmed,
	StatusCheckedIn,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
}

// IsValidStatus reports whether s is a known appointment status.
func IsValidStatus(s string) bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether s is absorbing: completed, cancelled and
// no-show admit no further transitions and never block staff availability.
func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

const (
	EntityAppointment = "appointment"
	EntityBlockedTime = "blocked_time"
	EntityClient      = "client"
	EntityStaff       = "staff"
	EntityService     = "service"
	EntityProduct     = "product"
	EntityLocation    = "location"
)

// AllEntityTypes is the closed set of entities the change log records.
var AllEntityTypes = []string{
	EntityAppointment,
	EntityBlockedTime,
	EntityClient,
	EntityStaff,
	EntityService,
	EntityProduct,
	EntityLocation,
}

// IsValidEntityType reports whether t belongs to the closed entity set.
func IsValidEntityType(t string) bool {
	for _, known := range AllEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	// SystemActor is recorded in status history when no user initiated
	// the change, e.g. the synthesized creation entry.
	SystemActor = "System"

	// DefaultRetentionHours bounds change-log lifetime before cleanup.
	DefaultRetentionHours = 24

	// DefaultPollLimit caps a single PollSince page.
	DefaultPollLimit = 500
)
