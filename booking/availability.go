/*
availability.go - Free-slot and free-day search

PURPOSE:
  Computes conflict-free time slots for a requested place type and duration:
  per-day slot grids (FindFreeSlots) and the set of days in the lookahead
  horizon with at least one slot (FindFreeDays).

ALGORITHM (single day):
  1. Resolve the places configured for the type; none => empty result.
  2. Search start: today starts at now+buffer rounded UP to the next stride
     boundary from midnight (clamped to workday start); other days start at
     the workday start.
  3. Search end: workday end minus the duration - a slot starting later would
     spill past closing.
  4. Step by the stride; a slot is free for a place iff its half-open window
     overlaps no persisted reservation for that place on that day.

  Whole-day durations (exactly one workday, see IsWholeDay) bypass stepping:
  the entire workday is the single candidate slot per place. Today is
  excluded once its workday has begun.

COMPLEXITY:
  O(horizonDays x slotsPerDay x placesPerType x reservationsPerDay).
  Tens of places and hundreds of slots per day - no index structure needed.

CONCURRENCY NOTE:
  Results are advisory. A slot shown as free may lose a race to another
  booking; Lifecycle.Submit re-checks inside the store transaction.

SEE ALSO:
  - overlap.go: The conflict predicate
  - lifecycle.go: The authoritative insert path
*/
package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TimeOfDay is a local wall-clock time, minutes from midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On anchors the time of day to a calendar date in that date's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(t)/60, int(t)%60, 0, 0, day.Location())
}

// Schedule is the static shape of the business day: which places exist per
// type and how the slot grid is laid out. Owned by configuration; the engine
// never mutates it.
type Schedule struct {
	Places map[PlaceType][]int

	WorkdayStart TimeOfDay
	WorkdayEnd   TimeOfDay

	StrideMinutes int
	BufferMinutes int
	LookaheadDays int

	Location *time.Location
}

// PlacesOf returns the configured places for a type, nil if unconfigured.
func (s Schedule) PlacesOf(t PlaceType) []int { return s.Places[t] }

// WorkdayContains reports whether [from, to] falls inside the workday
// window on from's calendar day.
func (s Schedule) WorkdayContains(from, to time.Time) bool {
	dayStart := s.WorkdayStart.On(from)
	dayEnd := s.WorkdayEnd.On(from)
	return !from.Before(dayStart) && !to.After(dayEnd)
}

// Engine answers availability queries against the current store state.
type Engine struct {
	Schedule Schedule
	Store    Store
	Clock    Clock
}

func NewEngine(schedule Schedule, store Store, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{Schedule: schedule, Store: store, Clock: clock}
}

// FindFreeSlots returns the chronological slot grid for one day. An
// unconfigured type or a day with no room yields an empty result, never an
// error.
func (e *Engine) FindFreeSlots(ctx context.Context, t PlaceType, hours decimal.Decimal, day time.Time) ([]Slot, error) {
	places := e.Schedule.PlacesOf(t)
	if len(places) == 0 {
		return nil, nil
	}
	if !hours.IsPositive() {
		return nil, &ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if IsWholeDay(hours) && !hours.Equal(hoursPerDay) {
		// Multi-day stays an admin conversation, not a self-service slot.
		return nil, &ValidationError{Field: "duration", Reason: "multi-day reservations are arranged with the admin"}
	}

	day = DateOf(day.In(e.Schedule.Location))

	reservations, err := e.Store.ListForDate(ctx, day)
	if err != nil {
		return nil, err
	}

	duration := DurationOf(hours)
	dayStart := e.Schedule.WorkdayStart.On(day)
	dayEnd := e.Schedule.WorkdayEnd.On(day)

	// Whole-day requests: the workday itself is the only candidate. Once
	// today's workday has begun the candidate would start in the past, so
	// today drops out.
	if IsWholeDay(hours) {
		if e.searchStart(day, dayStart).After(dayStart) {
			return nil, nil
		}
		free := e.freePlaces(reservations, places, dayStart, dayEnd)
		if len(free) == 0 {
			return nil, nil
		}
		return []Slot{{Start: dayStart, Places: free}}, nil
	}

	start := e.searchStart(day, dayStart)
	end := dayEnd.Add(-duration)
	if end.Before(start) {
		return nil, nil
	}

	var slots []Slot
	for current := start; !current.After(end); current = current.Add(time.Duration(e.Schedule.StrideMinutes) * time.Minute) {
		free := e.freePlaces(reservations, places, current, current.Add(duration))
		if len(free) > 0 {
			slots = append(slots, Slot{Start: current, Places: free})
		}
	}
	return slots, nil
}

// FindFreeDays returns every day in [today, today+lookahead] with at least
// one free slot for the type and duration.
func (e *Engine) FindFreeDays(ctx context.Context, t PlaceType, hours decimal.Decimal) ([]time.Time, error) {
	today := DateOf(e.Clock.Now().In(e.Schedule.Location))

	var days []time.Time
	for offset := 0; offset <= e.Schedule.LookaheadDays; offset++ {
		day := today.AddDate(0, 0, offset)
		slots, err := e.FindFreeSlots(ctx, t, hours, day)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			days = append(days, day)
		}
	}
	return days, nil
}

// searchStart computes where stepping begins on a given day. Today starts at
// now+buffer rounded up to the next stride boundary from midnight; other
// days start when the workday opens.
func (e *Engine) searchStart(day, dayStart time.Time) time.Time {
	now := e.Clock.Now().In(e.Schedule.Location)
	if !SameDate(day, now) {
		return dayStart
	}

	earliest := now.Add(time.Duration(e.Schedule.BufferMinutes) * time.Minute)
	rounded := roundUpToStride(earliest, e.Schedule.StrideMinutes)
	if rounded.Before(dayStart) {
		return dayStart
	}
	return rounded
}

// roundUpToStride rounds an instant up to the next multiple of stride
// minutes from midnight. An instant already on a boundary stays put.
func roundUpToStride(t time.Time, strideMinutes int) time.Time {
	midnight := DateOf(t)
	elapsed := t.Sub(midnight)
	stride := time.Duration(strideMinutes) * time.Minute
	steps := elapsed / stride
	if elapsed%stride != 0 {
		steps++
	}
	return midnight.Add(steps * stride)
}

// freePlaces returns the places with no overlapping reservation in
// [from, to), sorted ascending.
func (e *Engine) freePlaces(reservations []Reservation, places []int, from, to time.Time) []int {
	var free []int
	for _, place := range places {
		if !conflictsWith(reservations, place, from, to, "") {
			free = append(free, place)
		}
	}
	sort.Ints(free)
	return free
}
