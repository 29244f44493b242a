/*
lifecycle.go - Reservation lifecycle state machine

PURPOSE:
  Drives a reservation through creation -> payment -> confirmation ->
  completion/expiry. One explicit transition table, one dispatcher; what
  state a reservation is in is decoupled from how any caller renders it.

STATES:
  Draft                Client-side only, before persistence
  AwaitingPayment      Persisted, no payment proof yet
  PendingConfirmation  Proof attached, admin review pending
  Paid                 Terminal success (admin confirmation only)
  Expired              Terminal, row deleted by the scheduler
  Cancelled            Terminal, row deleted by the user

ILLEGAL TRANSITIONS:
  External actors race (admin UI, scheduler, client). Confirming a
  reservation that is not pending review is a no-op with a logged warning,
  not a crash.

INVARIANT:
  Paid is reachable only through AdminConfirm. The scheduler never sets it.
  Expiry applies to AwaitingPayment only; a reservation with a payment ref
  is protected until an admin rules on it.

SEE ALSO:
  - events.go: Events emitted on transitions
  - scheduler/: Drives ActExpire on threshold breach
*/
package booking

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
)

// State is the lifecycle position of a reservation.
type State string

const (
	StateDraft               State = "draft"
	StateAwaitingPayment     State = "awaiting_payment"
	StatePendingConfirmation State = "pending_confirmation"
	StatePaid                State = "paid"
	StateExpired             State = "expired"
	StateCancelled           State = "cancelled"
)

// Action is a lifecycle trigger.
type Action string

const (
	ActSubmit       Action = "submit"
	ActSubmitProof  Action = "submit_proof"
	ActAdminConfirm Action = "admin_confirm"
	ActAdminReject  Action = "admin_reject"
	ActUserCancel   Action = "user_cancel"
	ActExpire       Action = "expire"
)

// transitions is the complete state machine. Missing entries are illegal.
var transitions = map[State]map[Action]State{
	StateDraft: {
		ActSubmit: StateAwaitingPayment,
	},
	StateAwaitingPayment: {
		ActSubmitProof: StatePendingConfirmation,
		ActUserCancel:  StateCancelled,
		ActExpire:      StateExpired,
	},
	StatePendingConfirmation: {
		ActAdminConfirm: StatePaid,
		ActAdminReject:  StateAwaitingPayment,
		ActSubmitProof:  StatePendingConfirmation, // change-paycheck path
	},
}

// Next returns the state an action leads to, and whether it is legal.
func Next(from State, act Action) (State, bool) {
	to, ok := transitions[from][act]
	return to, ok
}

// Lifecycle is the single dispatcher for reservation state changes. All
// mutations go through the Store; all transitions announce themselves on
// the Notifier.
type Lifecycle struct {
	Schedule Schedule
	Store    Store
	Notifier Notifier
	Clock    Clock
}

func NewLifecycle(schedule Schedule, store Store, notifier Notifier, clock Clock) *Lifecycle {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Lifecycle{Schedule: schedule, Store: store, Notifier: notifier, Clock: clock}
}

// Submit converts a completed Request into a persisted reservation in
// AwaitingPayment. The store re-validates the slot inside its transaction;
// losing the race returns ErrSlotConflict.
func (l *Lifecycle) Submit(ctx context.Context, req Request, price decimal.Decimal) (Reservation, error) {
	if err := l.validate(req); err != nil {
		return Reservation{}, err
	}

	day := DateOf(req.Day.In(l.Schedule.Location))
	from := req.TimeFrom.In(l.Schedule.Location)
	to := from.Add(DurationOf(req.Hours))

	if !l.Schedule.WorkdayContains(from, to) {
		return Reservation{}, &ValidationError{
			Field:  "time",
			Reason: fmt.Sprintf("outside workday %s-%s", l.Schedule.WorkdayStart, l.Schedule.WorkdayEnd),
		}
	}

	r := Reservation{
		OrderID:    OrderID(day, req.Hours, from, *req.Place, req.ClientID),
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Type:       req.Type,
		Place:      *req.Place,
		Day:        day,
		TimeFrom:   from,
		TimeTo:     to,
		Hours:      req.Hours,
		Price:      price,
		Paid:       false,
		CreatedAt:  l.Clock.Now(),
	}

	created, err := l.Store.Create(ctx, r)
	if err != nil {
		return Reservation{}, err
	}
	log.Printf("[Lifecycle] %s: %s -> %s (order %s)", ActSubmit, StateDraft, StateAwaitingPayment, created.OrderID)
	return created, nil
}

// SubmitProof attaches a payment confirmation reference, moving the
// reservation to PendingConfirmation. Resubmission replaces the reference.
func (l *Lifecycle) SubmitProof(ctx context.Context, orderID, ref string) (Reservation, error) {
	if ref == "" {
		return Reservation{}, &ValidationError{Field: "payment_ref", Reason: "must not be empty"}
	}
	return l.apply(ctx, orderID, ActSubmitProof, func(r Reservation) (Update, Event) {
		return Update{PaymentRef: &ref}, PaymentPendingAdminReview{Reservation: r}
	})
}

// Confirm marks a pending reservation paid. Admin-only path; this is the
// sole way Paid is ever reached.
func (l *Lifecycle) Confirm(ctx context.Context, orderID string) (Reservation, error) {
	paid := true
	return l.apply(ctx, orderID, ActAdminConfirm, func(r Reservation) (Update, Event) {
		return Update{Paid: &paid}, PaymentConfirmed{Reservation: r}
	})
}

// Reject clears submitted proof, returning the reservation to
// AwaitingPayment.
func (l *Lifecycle) Reject(ctx context.Context, orderID string) (Reservation, error) {
	empty := ""
	return l.apply(ctx, orderID, ActAdminReject, func(r Reservation) (Update, Event) {
		return Update{PaymentRef: &empty}, PaymentRejected{Reservation: r}
	})
}

// Cancel deletes a reservation at the user's request. Only legal while
// payment is still awaited.
func (l *Lifecycle) Cancel(ctx context.Context, orderID string) (Reservation, error) {
	current, err := l.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		return Reservation{}, err
	}
	if _, ok := Next(current.State(), ActUserCancel); !ok {
		log.Printf("[Lifecycle] illegal transition %s from %s (order %s), ignoring", ActUserCancel, current.State(), orderID)
		return current, nil
	}
	deleted, err := l.Store.Delete(ctx, orderID)
	if err != nil {
		return Reservation{}, err
	}
	log.Printf("[Lifecycle] %s: %s -> %s (order %s)", ActUserCancel, current.State(), StateCancelled, orderID)
	return deleted, nil
}

// Expire deletes a reservation that ran out of time, conditioned on the row
// still being unpaid and unconfirmed at delete time. A row that moved to
// PendingConfirmation after the caller read it survives; no event fires.
func (l *Lifecycle) Expire(ctx context.Context, orderID string) (Reservation, bool, error) {
	deleted, err := l.Store.DeleteIfUnpaid(ctx, orderID)
	if IsNotFound(err) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, err
	}
	log.Printf("[Lifecycle] %s: %s -> %s (order %s)", ActExpire, deleted.State(), StateExpired, orderID)
	l.publish(ReservationExpired{Reservation: deleted})
	return deleted, true, nil
}

// apply is the shared dispatcher: load, check the transition table, mutate,
// reload, announce.
func (l *Lifecycle) apply(ctx context.Context, orderID string, act Action, build func(Reservation) (Update, Event)) (Reservation, error) {
	current, err := l.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		return Reservation{}, err
	}

	from := current.State()
	to, ok := Next(from, act)
	if !ok {
		log.Printf("[Lifecycle] illegal transition %s from %s (order %s), ignoring", act, from, orderID)
		return current, nil
	}

	upd, event := build(current)
	found, err := l.Store.Update(ctx, orderID, upd)
	if err != nil {
		return Reservation{}, err
	}
	if !found {
		return Reservation{}, ErrNotFound
	}

	updated, err := l.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		return Reservation{}, err
	}

	log.Printf("[Lifecycle] %s: %s -> %s (order %s)", act, from, to, orderID)
	if event != nil {
		event = withReservation(event, updated)
		l.publish(event)
	}
	return updated, nil
}

func (l *Lifecycle) publish(event Event) {
	if err := l.Notifier.Publish(event); err != nil {
		log.Printf("[Lifecycle] notify %s failed: %v", event.Kind(), err)
	}
}

// withReservation rebuilds an event around the post-transition row so sinks
// see the final field values.
func withReservation(event Event, r Reservation) Event {
	switch event.(type) {
	case PaymentPendingAdminReview:
		return PaymentPendingAdminReview{Reservation: r}
	case PaymentConfirmed:
		return PaymentConfirmed{Reservation: r}
	case PaymentRejected:
		return PaymentRejected{Reservation: r}
	default:
		return event
	}
}

func (l *Lifecycle) validate(req Request) error {
	if req.ClientID == "" {
		return &ValidationError{Field: "client_id", Reason: "required"}
	}
	if !req.Hours.IsPositive() {
		return &ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if IsWholeDay(req.Hours) && !req.Hours.Equal(hoursPerDay) {
		return &ValidationError{Field: "duration", Reason: "multi-day reservations are arranged with the admin"}
	}
	if len(l.Schedule.PlacesOf(req.Type)) == 0 {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("no places configured for %q", req.Type)}
	}
	if req.Day == nil || req.TimeFrom == nil || req.Place == nil {
		return &ValidationError{Field: "request", Reason: "day, time and place must all be chosen"}
	}
	if !containsPlace(l.Schedule.PlacesOf(req.Type), *req.Place) {
		return &ValidationError{Field: "place", Reason: fmt.Sprintf("place %d does not belong to type %q", *req.Place, req.Type)}
	}
	return nil
}

func containsPlace(places []int, place int) bool {
	for _, p := range places {
		if p == place {
			return true
		}
	}
	return false
}
