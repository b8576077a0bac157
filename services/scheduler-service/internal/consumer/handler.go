// Package consumer turns booking events into scheduler job changes.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/scheduler-service/internal/jobs"
)

// Topics lists everything the scheduler consumes.
var Topics = []string{
	kafkax.TopicReminderRequested,
	kafkax.TopicAppointmentRescheduled,
	kafkax.TopicAppointmentStatusChanged,
	kafkax.TopicAppointmentDeleted,
}

type reminderRequest struct {
	AppointmentID  string            `json:"appointment_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Channel        string            `json:"channel"`
	Recipient      string            `json:"recipient"`
	RemindAt       string            `json:"remind_at"`
	Slot           string            `json:"slot"`
	OffsetMinutes  int               `json:"offset_minutes"`
	TemplateData   map[string]string `json:"template_data"`
}

type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
}

func (e appointmentEvent) slot() string {
	return e.Date + "T" + e.Time
}

type Handler struct {
	pool    db.DBTX
	jobs    *jobs.Repository
	metrics *metrics.SchedulerMetrics
	logger  *slog.Logger
}

func NewHandler(pool db.DBTX, repo *jobs.Repository, m *metrics.SchedulerMetrics, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, jobs: repo, metrics: m, logger: logger}
}

// Handle matches kafkax.Handler.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case kafkax.TopicReminderRequested:
		var req reminderRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return fmt.Errorf("%w: %v", kafkax.ErrSkip, err)
		}
		return h.schedule(ctx, req)
	case kafkax.TopicAppointmentRescheduled, kafkax.TopicAppointmentStatusChanged, kafkax.TopicAppointmentDeleted:
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
			return fmt.Errorf("%w: invalid appointment event", kafkax.ErrSkip)
		}
		return h.cancel(ctx, msg.Topic, evt)
	default:
		return fmt.Errorf("%w: unexpected topic %s", kafkax.ErrSkip, msg.Topic)
	}
}

func (h *Handler) schedule(ctx context.Context, req reminderRequest) error {
	if req.AppointmentID == "" || req.IdempotencyKey == "" || req.Recipient == "" || req.RemindAt == "" {
		return fmt.Errorf("%w: missing reminder fields", kafkax.ErrSkip)
	}
	remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
	if err != nil {
		return fmt.Errorf("%w: remind_at: %v", kafkax.ErrSkip, err)
	}
	if req.Channel == "" {
		req.Channel = "whatsapp"
	}

	written, err := h.jobs.Upsert(ctx, h.pool, jobs.Job{
		IdempotencyKey: req.IdempotencyKey,
		AppointmentID:  req.AppointmentID,
		Channel:        req.Channel,
		Recipient:      req.Recipient,
		RemindAt:       remindAt,
		Slot:           req.Slot,
		OffsetMinutes:  req.OffsetMinutes,
		TemplateData:   req.TemplateData,
	})
	if err != nil {
		return err
	}
	if written {
		h.metrics.IncJobs("scheduled", 1)
		h.logger.Info("reminder scheduled", "appointment_id", req.AppointmentID, "remind_at", req.RemindAt)
	}
	return nil
}

// cancel drops reminders that no longer match the appointment. A reschedule
// keeps the jobs for the new slot, which may already have arrived; any
// status other than SCHEDULED and a deletion cancel everything.
func (h *Handler) cancel(ctx context.Context, topic string, evt appointmentEvent) error {
	keep := ""
	switch topic {
	case kafkax.TopicAppointmentRescheduled:
		keep = evt.slot()
	case kafkax.TopicAppointmentStatusChanged:
		if evt.Status == "SCHEDULED" {
			return nil
		}
	}
	n, err := h.jobs.CancelPending(ctx, h.pool, evt.AppointmentID, keep)
	if err != nil {
		return err
	}
	if n > 0 {
		h.metrics.IncJobs("cancelled", int(n))
		h.logger.Info("reminders cancelled", "appointment_id", evt.AppointmentID, "count", n, "reason", topic)
	}
	return nil
}
