package booking

import "time"

// =============================================================================
// CONFLICT VALIDATOR - Pure overlap detection
// =============================================================================

// Overlaps reports whether two half-open intervals [aFrom, aTo) and
// [bFrom, bTo) intersect. Touching endpoints do not conflict: a reservation
// ending at 12:00 never blocks one starting at 12:00.
func Overlaps(aFrom, aTo, bFrom, bTo time.Time) bool {
	return aFrom.Before(bTo) && bFrom.Before(aTo)
}

// conflictsWith reports whether the window collides with an existing
// reservation for the same place. excludeOrderID skips the reservation's own
// prior row when re-validating an update.
func conflictsWith(existing []Reservation, place int, from, to time.Time, excludeOrderID string) bool {
	for _, r := range existing {
		if r.Place != place {
			continue
		}
		if excludeOrderID != "" && r.OrderID == excludeOrderID {
			continue
		}
		if Overlaps(from, to, r.TimeFrom, r.TimeTo) {
			return true
		}
	}
	return false
}
