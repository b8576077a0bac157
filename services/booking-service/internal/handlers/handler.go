package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/booking"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/scheduling"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/storage"
)

// AppointmentReader serves the read-only admin views.
type AppointmentReader interface {
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error)
	All(ctx context.Context) ([]model.Appointment, error)
}

type BookingHandler struct {
	svc      *booking.Service
	reader   AppointmentReader
	schedule scheduling.Provider
	logger   *slog.Logger
}

func NewBookingHandler(svc *booking.Service, reader AppointmentReader, schedule scheduling.Provider, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, reader: reader, schedule: schedule, logger: logger}
}

// Register mounts the public routes and the admin routes. The gateway decides
// which of them need an admin token.
func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/available-days", h.AvailableDays)
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/availability", h.Availability)
	mux.HandleFunc("/api/v1/public/book", h.Book)

	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/status", h.UpdateStatus)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/stats", h.Stats)
	mux.HandleFunc("/api/v1/appointments/links", h.Links)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduling.ErrServiceNotFound):
		http.Error(w, "service not found", http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSlotUnavailable):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, storage.ErrKeyReused):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrNotReschedulable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrOutsideHours), errors.Is(err, booking.ErrDateBlocked), errors.Is(err, booking.ErrInPast):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
