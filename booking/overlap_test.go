package booking_test

import (
	"testing"
	"time"

	"github.com/ikigai/booking-engine/booking"
)

func at(hour, min int) time.Time {
	return time.Date(2026, time.September, 3, hour, min, 0, 0, time.UTC)
}

func TestOverlaps_PartialOverlap(t *testing.T) {
	// GIVEN: reservation 10:00-12:00
	// WHEN: checking 11:00-13:00
	// THEN: they conflict

	if !booking.Overlaps(at(10, 0), at(12, 0), at(11, 0), at(13, 0)) {
		t.Error("expected overlap for intersecting intervals")
	}
}

func TestOverlaps_Containment(t *testing.T) {
	// GIVEN: reservation 10:00-14:00
	// WHEN: checking 11:00-12:00 (fully inside)
	// THEN: they conflict

	if !booking.Overlaps(at(10, 0), at(14, 0), at(11, 0), at(12, 0)) {
		t.Error("expected overlap for contained interval")
	}
	if !booking.Overlaps(at(11, 0), at(12, 0), at(10, 0), at(14, 0)) {
		t.Error("expected overlap for containing interval")
	}
}

func TestOverlaps_TouchingEndpoints_NoConflict(t *testing.T) {
	// GIVEN: reservation 10:00-12:00
	// WHEN: checking 12:00-14:00 (starts exactly where the other ends)
	// THEN: no conflict; intervals are half-open

	if booking.Overlaps(at(10, 0), at(12, 0), at(12, 0), at(14, 0)) {
		t.Error("touching endpoints must not conflict")
	}
	if booking.Overlaps(at(12, 0), at(14, 0), at(10, 0), at(12, 0)) {
		t.Error("touching endpoints must not conflict (reversed)")
	}
}

func TestOverlaps_Disjoint(t *testing.T) {
	if booking.Overlaps(at(9, 0), at(10, 0), at(11, 0), at(12, 0)) {
		t.Error("disjoint intervals must not conflict")
	}
}

func TestOverlaps_Identical(t *testing.T) {
	if !booking.Overlaps(at(10, 0), at(12, 0), at(10, 0), at(12, 0)) {
		t.Error("identical intervals must conflict")
	}
}
