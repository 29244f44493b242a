// Package store provides booking.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ikigai/booking-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.Mutex
	reservations map[string]booking.Reservation
}

func NewMemory() *Memory {
	return &Memory{reservations: make(map[string]booking.Reservation)}
}

// Create inserts after re-checking the slot under the same lock, so two
// concurrent creates for one slot cannot both succeed.
func (m *Memory) Create(_ context.Context, r booking.Reservation) (booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[r.OrderID]; exists {
		return booking.Reservation{}, &booking.SlotConflictError{Place: r.Place, TimeFrom: r.TimeFrom, TimeTo: r.TimeTo}
	}
	if m.overlapsLocked(r.Place, r.Day, r.TimeFrom, r.TimeTo, "") {
		return booking.Reservation{}, &booking.SlotConflictError{Place: r.Place, TimeFrom: r.TimeFrom, TimeTo: r.TimeTo}
	}

	m.reservations[r.OrderID] = r
	return r, nil
}

func (m *Memory) GetByOrderID(_ context.Context, orderID string) (booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[orderID]
	if !ok {
		return booking.Reservation{}, booking.ErrNotFound
	}
	return r, nil
}

func (m *Memory) GetUpcomingUnpaid(_ context.Context, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.collectLocked(func(r booking.Reservation) bool {
		return r.PaymentRef == "" && !r.Paid && r.TimeFrom.After(now)
	}), nil
}

func (m *Memory) GetPaidUnconfirmed(_ context.Context, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.collectLocked(func(r booking.Reservation) bool {
		return r.PaymentRef != "" && !r.Paid && r.TimeFrom.After(now)
	}), nil
}

func (m *Memory) Update(_ context.Context, orderID string, upd booking.Update) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[orderID]
	if !ok {
		return false, nil
	}

	next := r
	if upd.Day != nil {
		next.Day = *upd.Day
	}
	if upd.TimeFrom != nil {
		next.TimeFrom = *upd.TimeFrom
	}
	if upd.TimeTo != nil {
		next.TimeTo = *upd.TimeTo
	}
	if upd.Place != nil {
		next.Place = *upd.Place
	}
	if upd.PaymentRef != nil {
		next.PaymentRef = *upd.PaymentRef
	}
	if upd.Paid != nil {
		next.Paid = *upd.Paid
	}

	if upd.TouchesSlot() && m.overlapsLocked(next.Place, next.Day, next.TimeFrom, next.TimeTo, orderID) {
		return false, &booking.SlotConflictError{Place: next.Place, TimeFrom: next.TimeFrom, TimeTo: next.TimeTo}
	}

	m.reservations[orderID] = next
	return true, nil
}

func (m *Memory) Delete(_ context.Context, orderID string) (booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[orderID]
	if !ok {
		return booking.Reservation{}, booking.ErrNotFound
	}
	delete(m.reservations, orderID)
	return r, nil
}

func (m *Memory) DeleteIfUnpaid(_ context.Context, orderID string) (booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[orderID]
	if !ok || r.Paid || r.PaymentRef != "" {
		return booking.Reservation{}, booking.ErrNotFound
	}
	delete(m.reservations, orderID)
	return r, nil
}

func (m *Memory) ListForDate(_ context.Context, day time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.collectLocked(func(r booking.Reservation) bool {
		return booking.SameDate(r.Day, day)
	}), nil
}

func (m *Memory) ListUpcomingForClient(_ context.Context, clientID string, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.collectLocked(func(r booking.Reservation) bool {
		return r.ClientID == clientID && r.TimeFrom.After(now)
	}), nil
}

func (m *Memory) ListUnpaidForClient(_ context.Context, clientID string, now time.Time) ([]booking.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.collectLocked(func(r booking.Reservation) bool {
		return r.ClientID == clientID && r.PaymentRef == "" && !r.Paid && r.TimeFrom.After(now)
	}), nil
}

func (m *Memory) collectLocked(keep func(booking.Reservation) bool) []booking.Reservation {
	var out []booking.Reservation
	for _, r := range m.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeFrom.Before(out[j].TimeFrom) })
	return out
}

func (m *Memory) overlapsLocked(place int, day, from, to time.Time, excludeOrderID string) bool {
	for id, r := range m.reservations {
		if id == excludeOrderID || r.Place != place || !booking.SameDate(r.Day, day) {
			continue
		}
		if booking.Overlaps(from, to, r.TimeFrom, r.TimeTo) {
			return true
		}
	}
	return false
}
