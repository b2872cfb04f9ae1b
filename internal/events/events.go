package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventAppointmentCreated = "appointment_created"
	EventAppointmentUpdated = "appointment_updated"
	EventAppointmentDeleted = "appointment_deleted"
	EventStatusChanged      = "appointment_status_changed"
	EventStaffReassigned    = "appointment_staff_reassigned"
	EventBlockedTimeCreated = "blocked_time_created"
	EventBlockedTimeDeleted = "blocked_time_deleted"
)

// MutationPayload is the minimal snapshot of a mutation that event consumers
// (most importantly the change-log recorder) need.
type MutationPayload struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ChangeType string `json:"change_type"`
	LocationID string `json:"location_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. Handler errors are
// dropped: a subscriber failure must never fail the publishing mutation.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every known mutation event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, eventType := range []string{
		EventAppointmentCreated,
		EventAppointmentUpdated,
		EventAppointmentDeleted,
		EventStatusChanged,
		EventStaffReassigned,
		EventBlockedTimeCreated,
		EventBlockedTimeDeleted,
	} {
		b.Subscribe(eventType, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
