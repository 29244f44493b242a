package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikigai/booking-engine/api"
	"github.com/ikigai/booking-engine/booking"
	"github.com/ikigai/booking-engine/booking/store"
	"github.com/ikigai/booking-engine/config"
	"github.com/ikigai/booking-engine/metrics"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// sharedMetrics avoids duplicate prometheus registration across tests.
var sharedMetrics = metrics.New()

type fixture struct {
	server *httptest.Server
	store  *store.Memory
	clock  *booking.ManualClock
}

func newFixture(t *testing.T) *fixture {
	cfg := config.Default()
	cfg.Timezone = "UTC"
	require.NoError(t, cfg.Validate())

	mem := store.NewMemory()
	clock := booking.NewManualClock(time.Date(2026, time.September, 2, 18, 0, 0, 0, time.UTC))
	schedule := cfg.BookingSchedule()

	engine := booking.NewEngine(schedule, mem, clock)
	lifecycle := booking.NewLifecycle(schedule, mem, booking.NopNotifier{}, clock)

	handler := api.NewHandler(engine, lifecycle, mem, cfg, sharedMetrics)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)

	return &fixture{server: server, store: mem, clock: clock}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createBody() map[string]any {
	return map[string]any{
		"client_id":   "client-7",
		"client_name": "Dana",
		"type":        "hairstyle",
		"hours":       "1.5",
		"day":         "2026-09-03",
		"time_from":   "10:00",
		"place":       1,
	}
}

func (f *fixture) create(t *testing.T) api.ReservationDTO {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/reservations", createBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.ReservationDTO](t, resp)
}

// =============================================================================
// AVAILABILITY ENDPOINTS
// =============================================================================

func TestAPI_ListFreeSlots(t *testing.T) {
	// GIVEN: an empty day
	// WHEN: querying 3h hairstyle slots
	// THEN: grid 09:00..18:00 with both places

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/availability/slots?type=hairstyle&hours=3&day=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	slots := decode[[]api.SlotDTO](t, resp)
	require.Len(t, slots, 19)
	assert.Equal(t, "09:00", slots[0].Start)
	assert.Equal(t, []int{1, 2}, slots[0].Places)
}

func TestAPI_ListFreeSlots_MissingType(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/availability/slots?hours=1&day=2026-09-03", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ListFreeDays(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/availability/days?type=brows&hours=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	days := decode[[]api.DayDTO](t, resp)
	require.NotEmpty(t, days)
	assert.Equal(t, "2026-09-02", days[0].Day)
}

// =============================================================================
// RESERVATION LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_CreateReservation(t *testing.T) {
	f := newFixture(t)

	created := f.create(t)

	assert.Equal(t, "2026-09-03_1.5h_10-00_p1_client-7", created.OrderID)
	assert.Equal(t, "awaiting_payment", created.State)
	assert.Equal(t, "10:00", created.TimeFrom)
	assert.Equal(t, "11:30", created.TimeTo)
	assert.Equal(t, "450", created.Price, "300/h * 1.5h")
}

func TestAPI_CreateReservation_Conflict409(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	body := createBody()
	body["client_id"] = "client-8"
	body["time_from"] = "11:00"

	resp := f.do(t, http.MethodPost, "/api/reservations", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CreateReservation_Validation400(t *testing.T) {
	f := newFixture(t)

	body := createBody()
	body["place"] = 99

	resp := f.do(t, http.MethodPost, "/api/reservations", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetReservation_NotFound404(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/reservations/no-such-order", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PaymentFlow(t *testing.T) {
	// GIVEN: a created reservation
	// WHEN: proof is submitted and the admin confirms
	// THEN: states advance awaiting_payment -> pending_confirmation -> paid

	f := newFixture(t)
	created := f.create(t)
	base := "/api/reservations/" + created.OrderID

	resp := f.do(t, http.MethodPost, base+"/proof", map[string]string{"payment_ref": "receipt-001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending_confirmation", decode[api.ReservationDTO](t, resp).State)

	resp = f.do(t, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", decode[api.ReservationDTO](t, resp).State)
}

func TestAPI_RejectFlow(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)
	base := "/api/reservations/" + created.OrderID

	resp := f.do(t, http.MethodPost, base+"/proof", map[string]string{"payment_ref": "receipt-001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, base+"/reject", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decode[api.ReservationDTO](t, resp)
	assert.Equal(t, "awaiting_payment", dto.State)
	assert.Empty(t, dto.PaymentRef)
}

func TestAPI_SubmitProof_EmptyRef400(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)

	resp := f.do(t, http.MethodPost, "/api/reservations/"+created.OrderID+"/proof", map[string]string{"payment_ref": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CancelReservation(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)

	resp := f.do(t, http.MethodDelete, "/api/reservations/"+created.OrderID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/reservations/"+created.OrderID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_MoveReservation(t *testing.T) {
	// GIVEN: a reservation at 10:00
	// WHEN: patching time_from to 14:00
	// THEN: the window moves, duration preserved

	f := newFixture(t)
	created := f.create(t)

	resp := f.do(t, http.MethodPatch, "/api/reservations/"+created.OrderID, map[string]any{"time_from": "14:00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dto := decode[api.ReservationDTO](t, resp)
	assert.Equal(t, "14:00", dto.TimeFrom)
	assert.Equal(t, "15:30", dto.TimeTo)
}

func TestAPI_MoveReservation_OntoOccupiedSlot409(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	body := createBody()
	body["client_id"] = "client-8"
	body["time_from"] = "14:00"
	resp := f.do(t, http.MethodPost, "/api/reservations", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	other := decode[api.ReservationDTO](t, resp)

	resp = f.do(t, http.MethodPatch, "/api/reservations/"+other.OrderID, map[string]any{"time_from": "10:30"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_MoveReservation_OutsideWorkday400(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)

	resp := f.do(t, http.MethodPatch, "/api/reservations/"+created.OrderID, map[string]any{"time_from": "20:30"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// LISTINGS
// =============================================================================

func TestAPI_ListReservationsForDay(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	resp := f.do(t, http.MethodGet, "/api/reservations?day=2026-09-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.ReservationDTO](t, resp), 1)

	resp = f.do(t, http.MethodGet, "/api/reservations?day=2026-09-04", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]api.ReservationDTO](t, resp))
}

func TestAPI_ClientReservations(t *testing.T) {
	f := newFixture(t)
	created := f.create(t)

	resp := f.do(t, http.MethodGet, "/api/clients/client-7/reservations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upcoming := decode[[]api.ReservationDTO](t, resp)
	require.Len(t, upcoming, 1)
	assert.Equal(t, created.OrderID, upcoming[0].OrderID)

	resp = f.do(t, http.MethodGet, "/api/clients/client-7/reservations?filter=unpaid", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.ReservationDTO](t, resp), 1)

	resp = f.do(t, http.MethodGet, "/api/clients/client-7/reservations?filter=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

func TestAPI_Healthz(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
