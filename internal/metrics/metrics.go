package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	appointmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "appointments_created_total",
			Help:      "Appointments successfully booked.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "booking_conflicts_total",
			Help:      "Bookings rejected because the staff member was occupied.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "status_transitions_total",
			Help:      "Applied status transitions by target status.",
		},
		[]string{"status"},
	)

	changesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "changes_recorded_total",
			Help:      "Change-log records appended.",
		},
	)

	pollsServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "change_polls_total",
			Help:      "Change-log poll requests served.",
		},
	)

	changesCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "salonflow",
			Name:      "changes_cleaned_total",
			Help:      "Change-log records removed by retention cleanup.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			appointmentsCreated,
			bookingConflicts,
			statusTransitions,
			changesRecorded,
			pollsServed,
			changesCleaned,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAppointmentCreated() { appointmentsCreated.Inc() }

func IncBookingConflict() { bookingConflicts.Inc() }

func IncStatusTransition(status string) {
	statusTransitions.WithLabelValues(status).Inc()
}

func IncChangeRecorded() { changesRecorded.Inc() }

func IncPollServed() { pollsServed.Inc() }

func AddChangesCleaned(n int64) {
	changesCleaned.Add(float64(n))
}
