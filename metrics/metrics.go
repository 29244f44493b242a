// Package metrics exposes Prometheus collectors for the booking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the engine reports. All collectors are
// registered on the default registry; serve them with promhttp.
type Metrics struct {
	BookingsCreated     prometheus.Counter
	SlotConflicts       prometheus.Counter
	RemindersSent       *prometheus.CounterVec
	ReservationsExpired prometheus.Counter
	AdminPings          prometheus.Counter
	TickDuration        prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_reservations_created_total",
			Help: "Total number of reservations created",
		}),
		SlotConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_slot_conflicts_total",
			Help: "Total number of create/update attempts rejected for overlap",
		}),
		RemindersSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_reminders_sent_total",
			Help: "Total number of payment reminders emitted, by threshold source",
		}, []string{"source"}),
		ReservationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_reservations_expired_total",
			Help: "Total number of reservations deleted for missed payment",
		}),
		AdminPings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_admin_review_pings_total",
			Help: "Total number of admin notifications about unconfirmed payments",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_scheduler_tick_duration_seconds",
			Help:    "Duration of reminder scheduler ticks",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
