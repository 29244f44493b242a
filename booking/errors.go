/*
errors.go - Centralized error taxonomy for the booking engine

PURPOSE:
  All error types in one place. Callers branch with errors.Is / the helper
  predicates; layers above decide whether to retry, log, or surface.

ERROR CATEGORIES:
  1. SlotConflict      - insert/update collided with an existing booking
  2. NotFound          - unknown order id
  3. Validation        - request outside workday, bad duration, unknown type
  4. StoreUnavailable  - transient persistence failure (retried, then surfaced)

Absence of availability is never an error: an empty slot list and an empty
place list for a type are valid, empty results.
*/
package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSlotConflict is returned when a create or update would overlap an
	// existing reservation for the same place, or when a retried submission
	// collides on its own order id. User-correctable: re-show slots.
	ErrSlotConflict = errors.New("slot already booked")

	// ErrNotFound is returned when no reservation exists for an order id.
	ErrNotFound = errors.New("reservation not found")

	// ErrValidation is returned for requests the engine refuses to process:
	// time outside the workday window, non-positive duration, unknown type.
	ErrValidation = errors.New("invalid reservation request")

	// ErrStoreUnavailable is returned after bounded retries when the store
	// cannot be reached. State is never left partially written.
	ErrStoreUnavailable = errors.New("reservation store unavailable")
)

// SlotConflictError carries the slot that lost the race.
type SlotConflictError struct {
	Place    int
	TimeFrom time.Time
	TimeTo   time.Time
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot already booked: place %d, %s - %s",
		e.Place, e.TimeFrom.Format("2006-01-02 15:04"), e.TimeTo.Format("15:04"))
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotConflict }

// ValidationError carries the field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsConflict reports whether the error is a booking collision.
func IsConflict(err error) bool { return errors.Is(err, ErrSlotConflict) }

// IsNotFound reports whether the error is a missing reservation.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether the error is invalid client input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsUnavailable reports whether the error is a transient store failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
