package booking

// =============================================================================
// PRODUCED EVENTS - Consumed by external notification sinks
// =============================================================================

// ReminderSource says which elapsed-time axis triggered a reminder.
type ReminderSource string

const (
	// SourceCreation counts up from CreatedAt ("you booked N hours ago,
	// please pay").
	SourceCreation ReminderSource = "creation"

	// SourceStart counts down to TimeFrom ("starting soon, pay now").
	SourceStart ReminderSource = "start"
)

// Event is anything the engine announces to the outside world. Delivery is
// an external concern; the engine only emits.
type Event interface {
	// Kind returns a stable event name for routing/metrics.
	Kind() string
}

// ReminderDue fires when an unpaid reservation sweeps through a configured
// threshold window. Level is the threshold's index, 0 = most urgent.
type ReminderDue struct {
	Reservation Reservation
	Level       int
	Source      ReminderSource
}

func (ReminderDue) Kind() string { return "reminder_due" }

// ReservationExpired fires exactly once when the scheduler deletes a
// reservation that ran out of time, carrying the deleted row.
type ReservationExpired struct {
	Reservation Reservation
}

func (ReservationExpired) Kind() string { return "reservation_expired" }

// PaymentPendingAdminReview pings the admin channel about a reservation
// whose payment proof awaits confirmation.
type PaymentPendingAdminReview struct {
	Reservation Reservation
}

func (PaymentPendingAdminReview) Kind() string { return "payment_pending_admin_review" }

// PaymentConfirmed fires when an admin marks a reservation paid.
type PaymentConfirmed struct {
	Reservation Reservation
}

func (PaymentConfirmed) Kind() string { return "payment_confirmed" }

// PaymentRejected fires when an admin rejects submitted proof; the
// reservation returns to awaiting payment.
type PaymentRejected struct {
	Reservation Reservation
}

func (PaymentRejected) Kind() string { return "payment_rejected" }

// Notifier is the delivery sink. Implementations must be safe for use from
// the scheduler goroutine and the request path concurrently. A delivery
// failure is the sink's to report; the engine logs it and moves on.
type Notifier interface {
	Publish(event Event) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) error { return nil }
