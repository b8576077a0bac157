package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/booking"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/policy"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/scheduling"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/storage"
)

// memTx swallows outbox inserts.
type memTx struct{ pgx.Tx }

func (memTx) Commit(context.Context) error   { return nil }
func (memTx) Rollback(context.Context) error { return nil }
func (memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type memStore struct {
	mu    sync.Mutex
	appts map[string]model.Appointment
	keys  map[string]storage.IdempotencyRecord
	seq   int
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]model.Appointment{}, keys: map[string]storage.IdempotencyRecord{}}
}

func (m *memStore) Begin(context.Context) (pgx.Tx, error) { return memTx{}, nil }

func (m *memStore) Create(_ context.Context, _ pgx.Tx, a *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a.ID = fmt.Sprintf("a%d", m.seq)
	m.appts[a.ID] = *a
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	return m.Get(ctx, id)
}

func (m *memStore) ActiveOn(_ context.Context, _ db.Querier, date string) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.Date == date && a.Status.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	all, _ := m.All(ctx)
	var out []model.Appointment
	for _, a := range all {
		if f.Status == "" || a.Status == f.Status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) All(context.Context) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) Reschedule(_ context.Context, _ pgx.Tx, id, date, clock string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.appts[id]
	a.Date, a.Time = date, clock
	m.appts[id] = a
	return a, nil
}

func (m *memStore) UpdateStatus(_ context.Context, _ pgx.Tx, id string, status model.Status) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	a.Status = status
	m.appts[id] = a
	return a, nil
}

func (m *memStore) Delete(_ context.Context, _ pgx.Tx, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	delete(m.appts, id)
	return a, nil
}

func (m *memStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, key, fp string) (storage.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.keys[key]
	if !ok {
		rec = storage.IdempotencyRecord{Key: key, Fingerprint: fp}
		m.keys[key] = rec
	}
	return rec, ok, nil
}

func (m *memStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, key, id string, code int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.keys[key]
	rec.AppointmentID, rec.StatusCode, rec.ResponsePayload = id, code, body
	m.keys[key] = rec
	return nil
}

type staticSchedule struct{}

var volume = model.Service{ID: "svc-1", Name: "Volume Russo", Price: money.Amount(13000), DurationMinutes: 120}

func (staticSchedule) OperatingHours(context.Context) ([]model.OperatingHours, error) {
	var out []model.OperatingHours
	for d := 1; d <= 6; d++ {
		out = append(out, model.OperatingHours{DayOfWeek: d, IsOpen: true, Slots: []model.TimeRange{{Start: "09:00", End: "18:00"}}})
	}
	return out, nil
}

func (staticSchedule) AgendaBlocks(context.Context, string, string) ([]model.AgendaBlock, error) {
	return nil, nil
}

func (staticSchedule) Services(context.Context) ([]model.Service, error) {
	return []model.Service{volume}, nil
}

func (staticSchedule) Service(_ context.Context, id string) (model.Service, error) {
	if id != volume.ID {
		return model.Service{}, scheduling.ErrServiceNotFound
	}
	return volume, nil
}

func (staticSchedule) Studio(context.Context) (model.Studio, error) {
	return model.Studio{Name: "Cílios de Luxo", Whatsapp: "(11) 99999-0000", Address: "Rua das Flores, 10"}, nil
}

func newTestServer(t *testing.T) (http.Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(store, staticSchedule{}, policy.NewStaticProvider([]time.Duration{24 * time.Hour}), nil, logger, booking.Config{Location: time.UTC})
	mux := http.NewServeMux()
	NewBookingHandler(svc, store, staticSchedule{}, logger).Register(mux)
	return mux, store
}

func do(h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const bookBody = `{"service_id":"svc-1","client_name":"Ana","client_whatsapp":"11988887777","date":"2099-06-10","time":"14:00"}`

func TestBookReturnsAppointmentAndStudioLink(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(h, http.MethodPost, "/api/v1/public/book", bookBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.StatusScheduled, resp.Appointment.Status)
	assert.Equal(t, "Volume Russo", resp.Appointment.ServiceName)
	assert.True(t, strings.HasPrefix(resp.WhatsappLink, "https://wa.me/11999990000?text="), resp.WhatsappLink)
}

func TestBookConflictAndReplay(t *testing.T) {
	h, store := newTestServer(t)
	first := do(h, http.MethodPost, "/api/v1/public/book", bookBody, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, first.Code)

	replay := do(h, http.MethodPost, "/api/v1/public/book", bookBody, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Len(t, store.appts, 1)

	conflict := do(h, http.MethodPost, "/api/v1/public/book", bookBody)
	assert.Equal(t, http.StatusConflict, conflict.Code)

	other := strings.Replace(bookBody, `"14:00"`, `"16:00"`, 1)
	reused := do(h, http.MethodPost, "/api/v1/public/book", other, "Idempotency-Key", "k1")
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)
}

func TestBookValidation(t *testing.T) {
	h, _ := newTestServer(t)
	cases := map[string]struct {
		body string
		want int
	}{
		"empty body":      {``, http.StatusBadRequest},
		"bad json":        {`{`, http.StatusBadRequest},
		"unknown field":   {`{"foo":1}`, http.StatusBadRequest},
		"sunday":          {`{"service_id":"svc-1","client_name":"Ana","client_whatsapp":"1","date":"2099-06-14","time":"10:00"}`, http.StatusUnprocessableEntity},
		"unknown service": {`{"service_id":"x","client_name":"Ana","client_whatsapp":"1","date":"2099-06-10","time":"10:00"}`, http.StatusBadRequest},
		"past":            {`{"service_id":"svc-1","client_name":"Ana","client_whatsapp":"1","date":"2001-06-11","time":"10:00"}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/public/book", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPublicReads(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(h, http.MethodGet, "/api/v1/public/available-days?year=2099&month=6", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var days availableDaysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	assert.Contains(t, days.Days, 10)
	assert.NotContains(t, days.Days, 14)

	rec = do(h, http.MethodGet, "/api/v1/public/available-days?year=2099&month=13", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/v1/public/book", bookBody).Code)

	rec = do(h, http.MethodGet, "/api/v1/public/slots?date=2099-06-10&service_id=svc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots slotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Contains(t, slots.Times, "09:00")
	assert.NotContains(t, slots.Times, "14:00")

	rec = do(h, http.MethodGet, "/api/v1/public/availability?date=2099-06-10&time=14:00&service_id=svc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var probe availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probe))
	assert.False(t, probe.Available)
	assert.Equal(t, "taken", probe.Reason)

	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPost, "/api/v1/public/slots", "").Code)
}

func TestBareDayUsesViewedMonth(t *testing.T) {
	h, _ := newTestServer(t)

	body := `{"service_id":"svc-1","client_name":"Ana","client_whatsapp":"11988887777","date":"10","year":2099,"month":6,"time":"14:00"}`
	rec := do(h, http.MethodPost, "/api/v1/public/book", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp bookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2099-06-10", resp.Appointment.Date)

	rec = do(h, http.MethodGet, "/api/v1/public/slots?date=10&month=2099-06&service_id=svc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots slotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Equal(t, "2099-06-10", slots.Date)
	assert.NotContains(t, slots.Times, "14:00")

	rec = do(h, http.MethodGet, "/api/v1/public/availability?date=10&year=2099&month=6&time=14:00&service_id=svc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var verdict availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.Equal(t, "taken", verdict.Reason)

	bad := strings.Replace(body, `"month":6`, `"month":13`, 1)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/public/book", bad).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/public/slots?date=31&year=2099&month=6&service_id=svc-1", "").Code)
}

func TestAdminLifecycle(t *testing.T) {
	h, store := newTestServer(t)
	rec := do(h, http.MethodPost, "/api/v1/appointments", `{"service_id":"svc-1","client_name":"Bia","client_whatsapp":"11977776666","date":"2001-01-02","time":"10:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))

	rec = do(h, http.MethodPost, "/api/v1/appointments/status", `{"id":"`+appt.ID+`","status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(h, http.MethodGet, "/api/v1/appointments/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dash struct {
		TotalRevenue   float64 `json:"total_revenue"`
		CompletedCount int     `json:"completed_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dash))
	assert.Equal(t, 130.0, dash.TotalRevenue)
	assert.Equal(t, 1, dash.CompletedCount)

	rec = do(h, http.MethodPost, "/api/v1/appointments/reschedule", `{"id":"`+appt.ID+`","date":"2099-06-10","time":"10:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "completed appointments cannot move")

	rec = do(h, http.MethodGet, "/api/v1/appointments/links?id="+appt.ID+"&kind=confirmation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var link linkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	assert.True(t, strings.HasPrefix(link.Link, "https://wa.me/11977776666?text="))

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/appointments/links?id="+appt.ID+"&kind=sms", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/appointments?status=done", "").Code)

	rec = do(h, http.MethodDelete, "/api/v1/appointments?id="+appt.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.appts)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/v1/appointments/cancel", `{"id":"`+appt.ID+`"}`).Code)
}
