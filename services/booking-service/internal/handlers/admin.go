package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/whatsapp"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/booking"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/calendar"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/stats"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/storage"
)

// Appointments lists (GET), creates (POST) and deletes (DELETE ?id=).
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f storage.ListFilter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Status = status
	}
	now := h.svc.Now()
	for _, p := range []struct {
		name string
		dst  *string
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		date, err := calendar.NormalizeDate(raw, now)
		if err != nil {
			http.Error(w, "invalid "+p.name, http.StatusBadRequest)
			return
		}
		*p.dst = date
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = limit
	}

	appts, err := h.reader.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

type createRequest struct {
	ServiceID      string `json:"service_id"`
	ClientName     string `json:"client_name"`
	ClientWhatsapp string `json:"client_whatsapp"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// create registers an appointment on a client's behalf. Past times are
// allowed so the studio can record walk-ins after the fact.
func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	appt, _, err := h.svc.Book(r.Context(), booking.BookRequest{
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		ClientWhatsapp: req.ClientWhatsapp,
		Date:           req.Date,
		Time:           req.Time,
		AllowPast:      true,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (h *BookingHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil || strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id and a valid status are required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.UpdateStatus(r.Context(), strings.TrimSpace(req.ID), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type rescheduleRequest struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), strings.TrimSpace(req.ID), req.Date, req.Time)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	ID string `json:"id"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.ID) == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.ID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *BookingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	appts, err := h.reader.All(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	services, err := h.schedule.Services(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats.Compute(appts, services))
}

type linkResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Link    string `json:"link"`
}

// Links builds the WhatsApp message the studio sends to the client:
// kind=reminder or kind=confirmation.
func (h *BookingHandler) Links(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("id"))
	kind := strings.TrimSpace(q.Get("kind"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	if kind == "" {
		kind = "reminder"
	}

	appt, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	studio, err := h.schedule.Studio(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var msg string
	switch kind {
	case "reminder":
		msg = whatsapp.ReminderMessage(details(studio, appt))
	case "confirmation":
		msg = whatsapp.ConfirmationMessage(details(studio, appt))
	default:
		http.Error(w, "kind must be reminder or confirmation", http.StatusBadRequest)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, linkResponse{Kind: kind, Message: msg, Link: whatsapp.Link(appt.ClientWhatsapp, msg)})
}
