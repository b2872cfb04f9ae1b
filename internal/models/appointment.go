package models

import "time"

// Appointment is the central scheduling entity. Services are ordered:
// position 0 is the main service and is never removed by partial updates.
type Appointment struct {
	ID               string    `json:"id"`
	BookingReference string    `json:"booking_reference"`
	ClientID         string    `json:"client_id"`
	StaffID          string    `json:"staff_id"`
	LocationID       string    `json:"location_id"`
	StartTime        time.Time `json:"start_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	Status           string    `json:"status"`
	Notes            string    `json:"notes,omitempty"`

	// Money fields are opaque payload for this engine.
	TotalPrice     float64 `json:"total_price"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`

	Services      []AppointmentService `json:"services"`
	Products      []AppointmentProduct `json:"products"`
	StatusHistory []StatusHistoryEntry `json:"status_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// EndTime derives the exclusive end of the appointment interval.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// MainService returns the position-0 service line, or nil when the
// appointment has not been persisted yet.
func (a *Appointment) MainService() *AppointmentService {
	for i := range a.Services {
		if a.Services[i].Position == 0 {
			return &a.Services[i]
		}
	}
	if len(a.Services) > 0 {
		return &a.Services[0]
	}
	return nil
}

// IsTerminal reports whether the appointment reached an absorbing status.
func (a *Appointment) IsTerminal() bool {
	return IsTerminalStatus(a.Status)
}

// AppointmentService is a single service line on an appointment. StaffID is
// an optional sub-assignment independent of the appointment's primary staff.
type AppointmentService struct {
	ID              string  `json:"id"`
	AppointmentID   string  `json:"appointment_id"`
	ServiceID       string  `json:"service_id"`
	StaffID         string  `json:"staff_id,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Completed       bool    `json:"completed"`
	Position        int     `json:"position"`
}

// AppointmentProduct is a retail line sold alongside an appointment.
type AppointmentProduct struct {
	ID            string  `json:"id"`
	AppointmentID string  `json:"appointment_id"`
	ProductID     string  `json:"product_id"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
}

// StatusHistoryEntry is one row of the append-only status history.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updated_by"`
}
