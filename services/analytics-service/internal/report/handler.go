package report

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
)

type DayMetrics struct {
	Day           string `json:"day"`
	Booked        int    `json:"booked"`
	Cancelled     int    `json:"cancelled"`
	Completed     int    `json:"completed"`
	RemindersSent int    `json:"reminders_sent"`
	Failed        int    `json:"notifications_failed"`
}

type DeadLetter struct {
	AppointmentID string `json:"appointment_id"`
	Recipient     string `json:"recipient"`
	RemindAt      string `json:"remind_at"`
	ErrorReason   string `json:"error_reason"`
	FailedAt      string `json:"failed_at"`
}

type Handler struct {
	q      db.Querier
	logger *slog.Logger
}

func NewHandler(q db.Querier, logger *slog.Logger) *Handler {
	return &Handler{q: q, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/analytics/daily", h.Daily)
	mux.HandleFunc("/api/v1/analytics/dead-letters", h.DeadLetters)
}

// Daily returns one row per day in [from, to]; both default to the last 30 days.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -29)
	var ok bool
	if from, ok = dateParam(w, r, "from", from); !ok {
		return
	}
	if to, ok = dateParam(w, r, "to", to); !ok {
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	days, err := h.daily(r.Context(), from, to)
	if err != nil {
		h.logger.Error("daily report failed", "err", err)
		http.Error(w, "failed to load report", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, days)
}

func (h *Handler) daily(ctx context.Context, from, to time.Time) ([]DayMetrics, error) {
	rows, err := h.q.Query(ctx, `
		SELECT to_char(d.day, 'YYYY-MM-DD'),
		       COALESCE(a.booked_count, 0), COALESCE(a.cancelled_count, 0), COALESCE(a.completed_count, 0),
		       COALESCE(n.sent, 0), COALESCE(n.failed, 0)
		FROM generate_series($1::date, $2::date, interval '1 day') AS d(day)
		LEFT JOIN daily_appointment_metrics a ON a.day = d.day
		LEFT JOIN (
			SELECT day,
			       SUM(sent_count) FILTER (WHERE kind = 'reminder')::int AS sent,
			       SUM(failed_count)::int AS failed
			FROM daily_notification_metrics
			GROUP BY day
		) n ON n.day = d.day
		ORDER BY d.day
	`, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DayMetrics, error) {
		var m DayMetrics
		err := row.Scan(&m.Day, &m.Booked, &m.Cancelled, &m.Completed, &m.RemindersSent, &m.Failed)
		return m, err
	})
}

func (h *Handler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	rows, err := h.q.Query(r.Context(), `
		SELECT appointment_id::text, recipient, remind_at, error_reason, failed_at
		FROM scheduler_dlq_events
		ORDER BY failed_at DESC
		LIMIT 100
	`)
	if err != nil {
		http.Error(w, "failed to load dead letters", http.StatusInternalServerError)
		return
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadLetter, error) {
		var d DeadLetter
		var remindAt, failedAt time.Time
		if err := row.Scan(&d.AppointmentID, &d.Recipient, &remindAt, &d.ErrorReason, &failedAt); err != nil {
			return d, err
		}
		d.RemindAt = remindAt.UTC().Format(time.RFC3339)
		d.FailedAt = failedAt.UTC().Format(time.RFC3339)
		return d, nil
	})
	if err != nil {
		http.Error(w, "failed to load dead letters", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func dateParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return time.Time{}, false
	}
	return t, true
}
