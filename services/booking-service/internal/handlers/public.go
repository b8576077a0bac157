package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/whatsapp"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/availability"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/booking"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/calendar"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

type availableDaysResponse struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Days  []int `json:"days"`
}

// AvailableDays answers GET ?year=2025&month=6 (or ?month=2025-06).
func (h *BookingHandler) AvailableDays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	year, month, err := calendar.ParseMonth(strings.TrimSpace(q.Get("year")), strings.TrimSpace(q.Get("month")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	days, err := h.svc.AvailableDays(r.Context(), year, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availableDaysResponse{Year: year, Month: int(month), Days: days})
}

type slotsResponse struct {
	Date      string   `json:"date"`
	ServiceID string   `json:"service_id"`
	Times     []string `json:"times"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if date == "" || serviceID == "" {
		http.Error(w, "date and service_id are required", http.StatusBadRequest)
		return
	}
	date, err := inViewedMonth(date, strings.TrimSpace(q.Get("year")), strings.TrimSpace(q.Get("month")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	times, err := h.svc.Times(r.Context(), date, serviceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Date: date, ServiceID: serviceID, Times: times})
}

type availabilityResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

// Availability probes one slot. exclude_id lets the admin edit form ignore
// the appointment being edited.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	clock := strings.TrimSpace(q.Get("time"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if date == "" || clock == "" || serviceID == "" {
		http.Error(w, "date, time and service_id are required", http.StatusBadRequest)
		return
	}
	date, err := inViewedMonth(date, strings.TrimSpace(q.Get("year")), strings.TrimSpace(q.Get("month")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	verdict, err := h.svc.Probe(r.Context(), date, clock, serviceID, strings.TrimSpace(q.Get("exclude_id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Available: verdict == availability.Available, Reason: verdict.String()})
}

type bookRequest struct {
	ServiceID      string `json:"service_id"`
	ClientName     string `json:"client_name"`
	ClientWhatsapp string `json:"client_whatsapp"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	// Year and Month name the calendar page a bare day in Date was picked
	// from.
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
}

type bookResponse struct {
	Appointment  model.Appointment `json:"appointment"`
	WhatsappLink string            `json:"whatsapp_link,omitempty"`
}

// Book is the public booking endpoint. A retried request carrying the same
// Idempotency-Key gets the first appointment back.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		if httpx.IsEmptyBody(err) {
			http.Error(w, "request body required", http.StatusBadRequest)
			return
		}
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := inViewedMonth(req.Date, itoa(req.Year), itoa(req.Month))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, replayed, err := h.svc.Book(r.Context(), booking.BookRequest{
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		ClientWhatsapp: req.ClientWhatsapp,
		Date:           date,
		Time:           req.Time,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}

	resp := bookResponse{Appointment: appt}
	if studio, err := h.schedule.Studio(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "studio profile unavailable; booking link omitted", "err", err)
	} else if studio.Whatsapp != "" {
		resp.WhatsappLink = whatsapp.Link(studio.Whatsapp, whatsapp.BookingRequestMessage(details(studio, appt)))
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func details(studio model.Studio, appt model.Appointment) whatsapp.Details {
	return whatsapp.Details{
		StudioName:    studio.Name,
		StudioAddress: studio.Address,
		ClientName:    appt.ClientName,
		ServiceName:   appt.ServiceName,
		Date:          appt.Date,
		Time:          appt.Time,
	}
}

// inViewedMonth resolves a bare day of month against the year and month the
// client was browsing. Without them the date is left for the service, which
// falls back to the current month.
func inViewedMonth(date, yearRaw, monthRaw string) (string, error) {
	if yearRaw == "" && monthRaw == "" {
		return date, nil
	}
	year, month, err := calendar.ParseMonth(yearRaw, monthRaw)
	if err != nil {
		return "", err
	}
	return calendar.NormalizeDateIn(date, year, month)
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
