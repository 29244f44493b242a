/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the reservation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Availability:
    GET    /api/availability/days            Dates with free slots
    GET    /api/availability/slots           Free start times for one date

  Reservations:
    GET    /api/reservations?day=            Reservations for a date
    POST   /api/reservations                 Create reservation
    GET    /api/reservations/{orderID}       Get reservation
    PATCH  /api/reservations/{orderID}       Move to a new slot
    DELETE /api/reservations/{orderID}       Cancel (unpaid only)
    POST   /api/reservations/{orderID}/proof Attach payment proof

  Admin:
    POST   /api/reservations/{orderID}/confirm  Mark paid
    POST   /api/reservations/{orderID}/reject   Send back to awaiting payment

  Clients:
    GET    /api/clients/{id}/reservations    Upcoming (or ?filter=unpaid)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, lifecycle)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Reservation not found
  - 409: Slot conflict
  - 503: Store unavailable (retries exhausted)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ikigai/booking-engine/booking"
	"github.com/ikigai/booking-engine/config"
	"github.com/ikigai/booking-engine/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *booking.Engine
	Lifecycle *booking.Lifecycle
	Store     booking.Store
	Config    *config.Config
	Metrics   *metrics.Metrics

	loc *time.Location
}

// NewHandler creates a new handler around the wired domain objects.
func NewHandler(engine *booking.Engine, lifecycle *booking.Lifecycle, store booking.Store, cfg *config.Config, m *metrics.Metrics) *Handler {
	return &Handler{
		Engine:    engine,
		Lifecycle: lifecycle,
		Store:     store,
		Config:    cfg,
		Metrics:   m,
		loc:       engine.Schedule.Location,
	}
}

// =============================================================================
// AVAILABILITY HANDLERS
// =============================================================================

// ListFreeDays returns the dates within the lookahead horizon that still
// have at least one free slot for the requested type and duration.
// GET /api/availability/days?type=hairstyle&hours=1.5
func (h *Handler) ListFreeDays(w http.ResponseWriter, r *http.Request) {
	typ, hours, ok := h.availabilityParams(w, r)
	if !ok {
		return
	}

	days, err := h.Engine.FindFreeDays(r.Context(), typ, hours)
	if err != nil {
		writeDomainError(w, "Failed to search free days", err)
		return
	}

	writeJSON(w, http.StatusOK, toDayDTOs(days))
}

// ListFreeSlots returns the free start times on one date.
// GET /api/availability/slots?type=hairstyle&hours=1.5&day=2026-09-03
func (h *Handler) ListFreeSlots(w http.ResponseWriter, r *http.Request) {
	typ, hours, ok := h.availabilityParams(w, r)
	if !ok {
		return
	}

	day, err := h.parseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	slots, err := h.Engine.FindFreeSlots(r.Context(), typ, hours, day)
	if err != nil {
		writeDomainError(w, "Failed to search free slots", err)
		return
	}

	writeJSON(w, http.StatusOK, toSlotDTOs(slots))
}

func (h *Handler) availabilityParams(w http.ResponseWriter, r *http.Request) (booking.PlaceType, decimal.Decimal, bool) {
	q := r.URL.Query()

	typ := booking.PlaceType(q.Get("type"))
	if typ == "" {
		writeError(w, http.StatusBadRequest, "Missing type parameter", nil)
		return "", decimal.Zero, false
	}

	hours, err := decimal.NewFromString(q.Get("hours"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hours parameter", err)
		return "", decimal.Zero, false
	}

	return typ, hours, true
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// ListReservations returns the reservations on one date, ordered by start.
// GET /api/reservations?day=2026-09-03
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	day, err := h.parseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
		return
	}

	reservations, err := h.Store.ListForDate(r.Context(), day)
	if err != nil {
		writeDomainError(w, "Failed to list reservations", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(reservations, h.loc))
}

// CreateReservation creates a new reservation in the awaiting-payment state.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var body CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hours, err := decimal.NewFromString(body.Hours)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hours value", err)
		return
	}

	req := booking.Request{
		ClientID:   body.ClientID,
		ClientName: body.ClientName,
		Type:       booking.PlaceType(body.Type),
		Hours:      hours,
		Place:      body.Place,
	}

	if body.Day != "" {
		day, err := h.parseDay(body.Day)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid day format (use YYYY-MM-DD)", err)
			return
		}
		req.Day = &day
	}
	if body.TimeFrom != "" {
		from, err := h.parseTimeOnDay(req.Day, body.TimeFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid time_from format (use HH:MM)", err)
			return
		}
		req.TimeFrom = &from
	}

	price, err := h.Config.PriceFor(req.Type, hours)
	if err != nil {
		writeDomainError(w, "Failed to price reservation", err)
		return
	}

	created, err := h.Lifecycle.Submit(r.Context(), req, price)
	if err != nil {
		if booking.IsConflict(err) {
			h.Metrics.SlotConflicts.Inc()
		}
		writeDomainError(w, "Failed to create reservation", err)
		return
	}

	h.Metrics.BookingsCreated.Inc()
	writeJSON(w, http.StatusCreated, toReservationDTO(created, h.loc))
}

// GetReservation returns a single reservation by order id.
// GET /api/reservations/{orderID}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	reservation, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(reservation, h.loc))
}

// UpdateReservation moves a reservation to a new slot. The new slot is
// conflict-checked in the same transaction that applies the move.
// PATCH /api/reservations/{orderID}
func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var body UpdateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	current, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}

	upd, err := h.buildSlotUpdate(current, body)
	if err != nil {
		writeDomainError(w, "Invalid slot update", err)
		return
	}

	if _, err := h.Store.Update(r.Context(), orderID, upd); err != nil {
		if booking.IsConflict(err) {
			h.Metrics.SlotConflicts.Inc()
		}
		writeDomainError(w, "Failed to move reservation", err)
		return
	}

	updated, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to reload reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(updated, h.loc))
}

// CancelReservation deletes an unpaid reservation at the client's request.
// DELETE /api/reservations/{orderID}
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	cancelled, err := h.Lifecycle.Cancel(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to cancel reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(cancelled, h.loc))
}

// SubmitProof attaches a payment proof reference, moving the reservation
// to pending confirmation. Resubmitting replaces the previous proof.
// POST /api/reservations/{orderID}/proof
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var body SubmitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.PaymentRef == "" {
		writeError(w, http.StatusBadRequest, "Missing payment_ref", nil)
		return
	}

	updated, err := h.Lifecycle.SubmitProof(r.Context(), orderID, body.PaymentRef)
	if err != nil {
		writeDomainError(w, "Failed to submit payment proof", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(updated, h.loc))
}

// ConfirmPayment marks a pending reservation as paid.
// POST /api/reservations/{orderID}/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	updated, err := h.Lifecycle.Confirm(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to confirm payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(updated, h.loc))
}

// RejectPayment sends a pending reservation back to awaiting payment.
// POST /api/reservations/{orderID}/reject
func (h *Handler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	updated, err := h.Lifecycle.Reject(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, "Failed to reject payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTO(updated, h.loc))
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClientReservations returns a client's upcoming reservations, or only
// the unpaid ones with ?filter=unpaid.
// GET /api/clients/{id}/reservations
func (h *Handler) ListClientReservations(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	now := h.Engine.Clock.Now()

	var (
		reservations []booking.Reservation
		err          error
	)
	switch r.URL.Query().Get("filter") {
	case "", "upcoming":
		reservations, err = h.Store.ListUpcomingForClient(r.Context(), clientID, now)
	case "unpaid":
		reservations, err = h.Store.ListUnpaidForClient(r.Context(), clientID, now)
	default:
		writeError(w, http.StatusBadRequest, "Unknown filter (use upcoming or unpaid)", nil)
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to list client reservations", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(reservations, h.loc))
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDay interprets a YYYY-MM-DD string as midnight in the salon timezone.
func (h *Handler) parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, h.loc)
}

// parseTimeOnDay combines an HH:MM string with the chosen day.
func (h *Handler) parseTimeOnDay(day *time.Time, s string) (time.Time, error) {
	tod, err := booking.ParseTimeOfDay(s)
	if err != nil {
		return time.Time{}, err
	}
	if day == nil {
		return time.Time{}, &booking.ValidationError{Field: "day", Reason: "time_from requires a day"}
	}
	return tod.On(*day), nil
}

// buildSlotUpdate resolves the partial move request against the current
// reservation so TimeTo always tracks TimeFrom + duration.
func (h *Handler) buildSlotUpdate(current booking.Reservation, body UpdateReservationRequest) (booking.Update, error) {
	var upd booking.Update

	day := booking.DateOf(current.TimeFrom.In(h.loc))
	if body.Day != nil {
		parsed, err := h.parseDay(*body.Day)
		if err != nil {
			return upd, &booking.ValidationError{Field: "day", Reason: "use YYYY-MM-DD"}
		}
		day = parsed
		upd.Day = &parsed
	}

	from := current.TimeFrom.In(h.loc)
	if body.TimeFrom != nil {
		tod, err := booking.ParseTimeOfDay(*body.TimeFrom)
		if err != nil {
			return upd, &booking.ValidationError{Field: "time_from", Reason: "use HH:MM"}
		}
		from = tod.On(day)
	} else if body.Day != nil {
		// Same wall-clock time on the new day.
		from = time.Date(day.Year(), day.Month(), day.Day(),
			from.Hour(), from.Minute(), 0, 0, h.loc)
	}

	if body.Day != nil || body.TimeFrom != nil {
		to := from.Add(booking.DurationOf(current.Hours))
		if !h.Engine.Schedule.WorkdayContains(from, to) {
			return upd, &booking.ValidationError{Field: "time_from", Reason: "outside working hours"}
		}
		upd.TimeFrom = &from
		upd.TimeTo = &to
		if upd.Day == nil {
			upd.Day = &day
		}
	}

	if body.Place != nil {
		if !containsInt(h.Engine.Schedule.PlacesOf(current.Type), *body.Place) {
			return upd, &booking.ValidationError{Field: "place", Reason: "place does not belong to this type"}
		}
		upd.Place = body.Place
	}

	return upd, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case booking.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case booking.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case booking.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
