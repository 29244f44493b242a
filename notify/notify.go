// Package notify provides delivery sinks for the events the booking engine
// emits. Sinks implement booking.Notifier; delivery failures are logged and
// returned so callers can ignore them without interrupting the main flow.
package notify

import (
	"log"

	"github.com/ikigai/booking-engine/booking"
)

// Log writes every event to the process log. The default sink.
type Log struct{}

func (Log) Publish(event booking.Event) error {
	switch e := event.(type) {
	case booking.ReminderDue:
		log.Printf("[Notify] %s: order %s, level %d, source %s", event.Kind(), e.Reservation.OrderID, e.Level, e.Source)
	case booking.ReservationExpired:
		log.Printf("[Notify] %s: order %s", event.Kind(), e.Reservation.OrderID)
	case booking.PaymentPendingAdminReview:
		log.Printf("[Notify] %s: order %s ref %s", event.Kind(), e.Reservation.OrderID, e.Reservation.PaymentRef)
	case booking.PaymentConfirmed:
		log.Printf("[Notify] %s: order %s", event.Kind(), e.Reservation.OrderID)
	case booking.PaymentRejected:
		log.Printf("[Notify] %s: order %s", event.Kind(), e.Reservation.OrderID)
	default:
		log.Printf("[Notify] %s", event.Kind())
	}
	return nil
}

// Multi fans an event out to several sinks. One sink's failure never stops
// the others; the first error is returned for logging.
type Multi []booking.Notifier

func (m Multi) Publish(event booking.Event) error {
	var first error
	for _, n := range m {
		if err := n.Publish(event); err != nil {
			log.Printf("[Notify] sink failed for %s: %v", event.Kind(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
