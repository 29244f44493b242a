package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikigai/booking-engine/booking"
	"github.com/ikigai/booking-engine/booking/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testSchedule() booking.Schedule {
	return booking.Schedule{
		Places: map[booking.PlaceType][]int{
			"hairstyle": {1, 2},
			"brows":     {3},
		},
		WorkdayStart:  booking.TimeOfDay(9 * 60),
		WorkdayEnd:    booking.TimeOfDay(21 * 60),
		StrideMinutes: 30,
		BufferMinutes: 25,
		LookaheadDays: 14,
		Location:      time.UTC,
	}
}

// newTestEngine pins the clock to the evening before the queried day so
// same-day buffer logic stays out of the way unless a test wants it.
func newTestEngine() (*booking.Engine, *store.Memory, *booking.ManualClock) {
	mem := store.NewMemory()
	clock := booking.NewManualClock(time.Date(2026, time.September, 2, 18, 0, 0, 0, time.UTC))
	return booking.NewEngine(testSchedule(), mem, clock), mem, clock
}

func seedReservation(t *testing.T, mem *store.Memory, place int, from, to time.Time) {
	t.Helper()
	day := booking.DateOf(from)
	hours := decimal.NewFromFloat(to.Sub(from).Hours())
	_, err := mem.Create(context.Background(), booking.Reservation{
		OrderID:   booking.OrderID(day, hours, from, place, "seed"),
		ClientID:  "seed",
		Type:      "hairstyle",
		Place:     place,
		Day:       day,
		TimeFrom:  from,
		TimeTo:    to,
		Hours:     hours,
		Price:     decimal.NewFromInt(100),
		CreatedAt: from.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
}

var sep3 = time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC)

// =============================================================================
// SLOT GRID TESTS
// =============================================================================

func TestFindFreeSlots_EmptyDay_FullGrid(t *testing.T) {
	// GIVEN: no reservations, 09:00-21:00 workday, 30 min stride
	// WHEN: searching 3h slots
	// THEN: grid runs 09:00..18:00 inclusive, every place free

	engine, _, _ := newTestEngine()

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(3), sep3)
	require.NoError(t, err)

	require.Len(t, slots, 19) // (18:00-09:00)/30min + 1
	assert.Equal(t, "09:00", slots[0].Label())
	assert.Equal(t, "18:00", slots[len(slots)-1].Label())
	for _, s := range slots {
		assert.Equal(t, []int{1, 2}, s.Places)
	}
}

func TestFindFreeSlots_OccupiedPlace_Excluded(t *testing.T) {
	// GIVEN: place 1 reserved 10:00-11:30
	// WHEN: searching 1h slots
	// THEN: overlapping starts lose place 1 only; the touching 09:00 slot
	//       keeps both places

	engine, mem, _ := newTestEngine()
	seedReservation(t, mem, 1, at(10, 0), at(11, 30))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(1), sep3)
	require.NoError(t, err)

	byLabel := make(map[string][]int)
	for _, s := range slots {
		byLabel[s.Label()] = s.Places
	}

	assert.Equal(t, []int{1, 2}, byLabel["09:00"], "ends exactly at 10:00, no conflict")
	assert.Equal(t, []int{2}, byLabel["09:30"], "09:30-10:30 overlaps")
	assert.Equal(t, []int{2}, byLabel["10:00"], "10:00-11:00 overlaps")
	assert.Equal(t, []int{2}, byLabel["11:00"], "11:00-12:00 overlaps until 11:30")
	assert.Equal(t, []int{1, 2}, byLabel["11:30"], "starts exactly at the end, no conflict")
}

func TestFindFreeSlots_PlaceFullyBooked_SlotDropped(t *testing.T) {
	// GIVEN: both hairstyle places reserved 10:00-11:00
	// WHEN: searching 1h slots
	// THEN: 10:00 does not appear at all

	engine, mem, _ := newTestEngine()
	seedReservation(t, mem, 1, at(10, 0), at(11, 0))
	seedReservation(t, mem, 2, at(10, 0), at(11, 0))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(1), sep3)
	require.NoError(t, err)

	for _, s := range slots {
		assert.NotEqual(t, "10:00", s.Label())
	}
}

func TestFindFreeSlots_SameDay_BufferAndRounding(t *testing.T) {
	// GIVEN: it is 10:05 on the queried day, buffer 25 min
	// WHEN: searching 1h slots for today
	// THEN: the grid starts at 10:30 (10:05 + 25min, already on a boundary)

	engine, _, clock := newTestEngine()
	clock.Set(time.Date(2026, time.September, 3, 10, 5, 0, 0, time.UTC))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(1), sep3)
	require.NoError(t, err)

	require.NotEmpty(t, slots)
	assert.Equal(t, "10:30", slots[0].Label())
}

func TestFindFreeSlots_SameDay_RoundsUpToStride(t *testing.T) {
	// GIVEN: it is 10:10, buffer 25 min -> earliest 10:35
	// WHEN: searching slots for today
	// THEN: 10:35 rounds up to the 11:00 boundary

	engine, _, clock := newTestEngine()
	clock.Set(time.Date(2026, time.September, 3, 10, 10, 0, 0, time.UTC))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(1), sep3)
	require.NoError(t, err)

	require.NotEmpty(t, slots)
	assert.Equal(t, "11:00", slots[0].Label())
}

func TestFindFreeSlots_DurationLongerThanRemainingDay_Empty(t *testing.T) {
	// GIVEN: it is 19:00 on the queried day
	// WHEN: searching 3h slots (last viable start was 18:00)
	// THEN: no slots

	engine, _, clock := newTestEngine()
	clock.Set(time.Date(2026, time.September, 3, 19, 0, 0, 0, time.UTC))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(3), sep3)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFindFreeSlots_UnknownType_EmptyNoError(t *testing.T) {
	engine, _, _ := newTestEngine()

	slots, err := engine.FindFreeSlots(context.Background(), "massage", decimal.NewFromInt(1), sep3)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFindFreeSlots_NonPositiveDuration_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine()

	_, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.Zero, sep3)
	assert.True(t, booking.IsValidation(err))
}

// =============================================================================
// WHOLE-DAY TESTS
// =============================================================================

func TestFindFreeSlots_WholeDay_SingleCandidate(t *testing.T) {
	// GIVEN: an empty day
	// WHEN: searching for 12h (the whole workday)
	// THEN: exactly one slot at workday open with every place

	engine, _, _ := newTestEngine()

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(12), sep3)
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, "09:00", slots[0].Label())
	assert.Equal(t, []int{1, 2}, slots[0].Places)
}

func TestFindFreeSlots_WholeDay_AnyReservationBlocksPlace(t *testing.T) {
	// GIVEN: place 1 has a 30 min reservation mid-day
	// WHEN: searching the whole workday
	// THEN: place 1 drops out, place 2 remains

	engine, mem, _ := newTestEngine()
	seedReservation(t, mem, 1, at(14, 0), at(14, 30))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(12), sep3)
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, []int{2}, slots[0].Places)
}

func TestFindFreeSlots_WholeDay_TodayAfterOpening_Empty(t *testing.T) {
	// GIVEN: the clock mid-workday on the queried day
	// WHEN: searching for the whole workday
	// THEN: no slot; the only candidate would start in the past

	engine, _, clock := newTestEngine()
	clock.Set(time.Date(2026, time.September, 3, 18, 0, 0, 0, time.UTC))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(12), sep3)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFindFreeSlots_WholeDay_TodayBeforeOpening_Offered(t *testing.T) {
	// GIVEN: the clock before the workday opens on the queried day
	// WHEN: searching for the whole workday
	// THEN: the full-day candidate is still offered

	engine, _, clock := newTestEngine()
	clock.Set(time.Date(2026, time.September, 3, 8, 0, 0, 0, time.UTC))

	slots, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(12), sep3)
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, "09:00", slots[0].Label())
}

func TestFindFreeSlots_MultiDay_Rejected(t *testing.T) {
	// GIVEN: a 24h request (two whole workdays)
	// WHEN: searching slots
	// THEN: validation error; multi-day is an admin conversation

	engine, _, _ := newTestEngine()

	_, err := engine.FindFreeSlots(context.Background(), "hairstyle", decimal.NewFromInt(24), sep3)
	assert.True(t, booking.IsValidation(err))
}

// =============================================================================
// FREE DAY TESTS
// =============================================================================

func TestFindFreeDays_SkipsFullyBookedDay(t *testing.T) {
	// GIVEN: September 3 fully booked for brows (single place, whole workday)
	// WHEN: listing free days for a 1h brows visit
	// THEN: September 3 is absent, neighbours are present

	engine, mem, _ := newTestEngine()
	seedReservation(t, mem, 3, at(9, 0), at(21, 0))

	days, err := engine.FindFreeDays(context.Background(), "brows", decimal.NewFromInt(1))
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, d := range days {
		found[d.Format("2006-01-02")] = true
	}
	assert.False(t, found["2026-09-03"])
	assert.True(t, found["2026-09-04"])
}

func TestFindFreeDays_WholeDay_TodayExcludedAfterOpening(t *testing.T) {
	// GIVEN: the clock at 18:00, well into today's workday
	// WHEN: listing free days for a whole-workday request
	// THEN: today is absent, tomorrow leads the list

	engine, _, _ := newTestEngine()

	days, err := engine.FindFreeDays(context.Background(), "hairstyle", decimal.NewFromInt(12))
	require.NoError(t, err)

	require.NotEmpty(t, days)
	assert.Equal(t, "2026-09-03", days[0].Format("2006-01-02"))
}

func TestFindFreeDays_HorizonLength(t *testing.T) {
	// GIVEN: an empty store, lookahead 14 starting the evening of Sep 2
	// WHEN: listing free days
	// THEN: today through today+14 (same-day slots still fit at 18:00)

	engine, _, _ := newTestEngine()

	days, err := engine.FindFreeDays(context.Background(), "hairstyle", decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.Len(t, days, 15)
	assert.Equal(t, "2026-09-02", days[0].Format("2006-01-02"))
	assert.Equal(t, "2026-09-16", days[len(days)-1].Format("2006-01-02"))
}
