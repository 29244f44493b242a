package booking

import (
	"context"
	"time"
)

// =============================================================================
// RESERVATION STORE - Persistence interface
// =============================================================================

// Store is the persistence boundary for reservations. Implementations must
// make Create transactional: the overlap re-check and the insert happen
// atomically with respect to concurrent callers, so two creates for the
// same slot can never both succeed.
//
// All methods translate persistence failures into the package taxonomy
// (ErrSlotConflict, ErrNotFound, ErrStoreUnavailable) and never swallow
// them; the caller decides whether to retry, log, or surface.
type Store interface {
	// Create persists a reservation after re-validating the slot against the
	// current store state inside the same transaction. Returns ErrSlotConflict
	// if the slot was taken in the meantime or the order id already exists.
	Create(ctx context.Context, r Reservation) (Reservation, error)

	// GetByOrderID returns the reservation or ErrNotFound.
	GetByOrderID(ctx context.Context, orderID string) (Reservation, error)

	// GetUpcomingUnpaid returns reservations with no payment confirmation
	// whose start is after now, ordered by TimeFrom.
	GetUpcomingUnpaid(ctx context.Context, now time.Time) ([]Reservation, error)

	// GetPaidUnconfirmed returns upcoming reservations that have a payment
	// confirmation reference but are not yet marked paid.
	GetPaidUnconfirmed(ctx context.Context, now time.Time) ([]Reservation, error)

	// Update mutates the allow-listed fields of a reservation. If the time
	// window or place changes, the overlap check is re-run excluding the
	// reservation's own row. Returns false if the order id does not exist.
	Update(ctx context.Context, orderID string, upd Update) (bool, error)

	// Delete removes a reservation, returning the deleted row for
	// notification purposes, or ErrNotFound.
	Delete(ctx context.Context, orderID string) (Reservation, error)

	// DeleteIfUnpaid removes a reservation only if it is still unpaid AND
	// has no payment confirmation at delete time. Returns ErrNotFound when
	// the row is gone or no longer eligible, so a scheduler racing a proof
	// submission never deletes a reservation that moved on.
	DeleteIfUnpaid(ctx context.Context, orderID string) (Reservation, error)

	// ListForDate returns all reservations on a calendar date, ordered by
	// TimeFrom.
	ListForDate(ctx context.Context, day time.Time) ([]Reservation, error)

	// ListUpcomingForClient returns a client's reservations starting after
	// now, ordered by TimeFrom.
	ListUpcomingForClient(ctx context.Context, clientID string, now time.Time) ([]Reservation, error)

	// ListUnpaidForClient returns a client's upcoming reservations that have
	// no payment confirmation yet.
	ListUnpaidForClient(ctx context.Context, clientID string, now time.Time) ([]Reservation, error)
}

// Update is the allow-list of mutable reservation fields. Nil pointers mean
// "leave unchanged". Identity fields (order id, client, type) are fixed for
// the life of the row.
type Update struct {
	Day      *time.Time
	TimeFrom *time.Time
	TimeTo   *time.Time
	Place    *int

	PaymentRef *string
	Paid       *bool
}

// TouchesSlot reports whether the update moves the reservation in time or
// space, requiring overlap re-validation by the store.
func (u Update) TouchesSlot() bool {
	return u.Day != nil || u.TimeFrom != nil || u.TimeTo != nil || u.Place != nil
}
