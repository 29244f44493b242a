/*
Package booking provides the core reservation engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  time-bounded reservations of a fixed set of physical places: free-slot
  search, overlap detection, the deterministic order identity, and the
  payment/confirmation lifecycle state machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - PlaceType: a category of workspace (e.g. "hairstyle", "brows")
  - Reservation: a persisted, time-bounded claim on one place
  - Request: the client-side draft built up while narrowing choices
  - Slot: a candidate [start, start+duration) interval with free places

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for prices and fractional hours
  2. Half-open intervals: [TimeFrom, TimeTo) - touching endpoints never conflict
  3. No shared session state: a Request is an explicit value carried by its
     booking flow, never a package-level table

SEE ALSO:
  - availability.go: Free-slot and free-day search
  - lifecycle.go: State machine for payment/confirmation/expiry
  - store.go: Persistence interface
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceType identifies a category of bookable workspace.
type PlaceType string

// Reservation is a persisted claim on one place for one time window.
// TimeFrom/TimeTo are timezone-aware instants stored in UTC; Day is the
// calendar date in the configured local timezone.
type Reservation struct {
	OrderID    string
	ClientID   string
	ClientName string

	Type  PlaceType
	Place int

	Day      time.Time // date only, local calendar day
	TimeFrom time.Time
	TimeTo   time.Time
	Hours    decimal.Decimal // duration in hours, may be fractional

	Price      decimal.Decimal
	Paid       bool
	PaymentRef string // payment confirmation link/file reference, empty if none

	CreatedAt time.Time
}

// State derives the lifecycle state from the persisted payment fields.
// A Reservation that exists in the store is never in StateDraft.
func (r Reservation) State() State {
	switch {
	case r.Paid:
		return StatePaid
	case r.PaymentRef != "":
		return StatePendingConfirmation
	default:
		return StateAwaitingPayment
	}
}

// Request is the client-owned draft of a reservation, built incrementally
// as the user narrows type, duration, day, time, and place. It is immutable
// once converted into a Reservation by Lifecycle.Submit.
type Request struct {
	ClientID   string
	ClientName string
	Type       PlaceType
	Hours      decimal.Decimal

	// Narrowed choices; nil until picked.
	Day      *time.Time
	TimeFrom *time.Time
	Place    *int
}

// Slot is one candidate start time on one day with the places free for it.
// FindFreeSlots returns slots in chronological order.
type Slot struct {
	Start  time.Time
	Places []int
}

// Label formats the slot start as the user-facing HH:MM key.
func (s Slot) Label() string { return s.Start.Format("15:04") }

// hoursPerDay is the whole-day sentinel unit: a duration that is a positive
// multiple of 12 hours means that many whole workdays.
var hoursPerDay = decimal.NewFromInt(12)

// IsWholeDay reports whether the duration means "the entire workday".
// Rule: hours >= 12 and divisible by 12. Anything else steps per-slot.
func IsWholeDay(hours decimal.Decimal) bool {
	return hours.GreaterThanOrEqual(hoursPerDay) && hours.Mod(hoursPerDay).IsZero()
}

// DurationOf converts fractional hours to a time.Duration.
func DurationOf(hours decimal.Decimal) time.Duration {
	mins := hours.Mul(decimal.NewFromInt(60)).IntPart()
	return time.Duration(mins) * time.Minute
}

// FormatHours renders a duration-in-hours the way order ids and price table
// keys expect: no trailing zeros ("1", "1.5", "12").
func FormatHours(hours decimal.Decimal) string {
	return hours.String()
}

// SameDate reports whether two instants fall on the same calendar date.
// Both must already be in the same location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateOf truncates an instant to its calendar date (midnight, same location).
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
