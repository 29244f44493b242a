/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific formatting (local times, formatted prices)
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TIME FORMATTING:
  Reservations are stored in UTC but presented in the salon's local
  timezone. DTO conversion takes the configured *time.Location so that
  "time_from": "14:00" means what the client sees on the wall clock.

SEE ALSO:
  - handlers.go: Uses these types
  - booking/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/ikigai/booking-engine/booking"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	OrderID    string `json:"order_id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	Type       string `json:"type"`
	Place      int    `json:"place"`
	Day        string `json:"day"`
	TimeFrom   string `json:"time_from"`
	TimeTo     string `json:"time_to"`
	Hours      string `json:"hours"`
	Price      string `json:"price"`
	State      string `json:"state"`
	PaymentRef string `json:"payment_ref,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// CreateReservationRequest is the request to create a reservation.
type CreateReservationRequest struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Type       string `json:"type"`
	Hours      string `json:"hours"`
	Day        string `json:"day"`
	TimeFrom   string `json:"time_from"`
	Place      *int   `json:"place,omitempty"`
}

// UpdateReservationRequest moves an existing reservation to a new slot.
// All fields are optional; absent fields keep their current value.
type UpdateReservationRequest struct {
	Day      *string `json:"day,omitempty"`
	TimeFrom *string `json:"time_from,omitempty"`
	Place    *int    `json:"place,omitempty"`
}

// SubmitProofRequest attaches a payment reference to a reservation.
type SubmitProofRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// SlotDTO is one bookable start time with the places free at it.
type SlotDTO struct {
	Start  string `json:"start"`
	Places []int  `json:"places"`
}

// DayDTO is one date with at least one free slot.
type DayDTO struct {
	Day string `json:"day"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toReservationDTO(r booking.Reservation, loc *time.Location) ReservationDTO {
	return ReservationDTO{
		OrderID:    r.OrderID,
		ClientID:   r.ClientID,
		ClientName: r.ClientName,
		Type:       string(r.Type),
		Place:      r.Place,
		Day:        r.Day.Format("2006-01-02"),
		TimeFrom:   r.TimeFrom.In(loc).Format("15:04"),
		TimeTo:     r.TimeTo.In(loc).Format("15:04"),
		Hours:      booking.FormatHours(r.Hours),
		Price:      r.Price.String(),
		State:      string(r.State()),
		PaymentRef: r.PaymentRef,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toReservationDTOs(rs []booking.Reservation, loc *time.Location) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toReservationDTO(r, loc)
	}
	return dtos
}

func toSlotDTOs(slots []booking.Slot) []SlotDTO {
	dtos := make([]SlotDTO, len(slots))
	for i, s := range slots {
		dtos[i] = SlotDTO{Start: s.Label(), Places: s.Places}
	}
	return dtos
}

func toDayDTOs(days []time.Time) []DayDTO {
	dtos := make([]DayDTO, len(days))
	for i, d := range days {
		dtos[i] = DayDTO{Day: d.Format("2006-01-02")}
	}
	return dtos
}
