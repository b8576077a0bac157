// Package projection folds domain events into the reporting tables.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
)

var Topics = []string{
	kafkax.TopicAppointmentBooked,
	kafkax.TopicAppointmentStatusChanged,
	kafkax.TopicNotificationSent,
	kafkax.TopicNotificationFailed,
	kafkax.TopicReminderDueDLQ,
	kafkax.TopicAuthAudit,
}

type Projector struct {
	q      db.Querier
	loc    *time.Location
	logger *slog.Logger
}

// NewProjector buckets events into days of loc.
func NewProjector(q db.Querier, loc *time.Location, logger *slog.Logger) *Projector {
	if loc == nil {
		loc = time.UTC
	}
	return &Projector{q: q, loc: loc, logger: logger}
}

type appointmentEvent struct {
	AppointmentID  string `json:"appointment_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	OccurredAt     string `json:"occurred_at"`
}

type notificationEvent struct {
	AppointmentID string `json:"appointment_id"`
	Kind          string `json:"kind"`
	SentAt        string `json:"sent_at"`
	FailedAt      string `json:"failed_at"`
}

type dlqEvent struct {
	AppointmentID string `json:"appointment_id"`
	Recipient     string `json:"recipient"`
	RemindAt      string `json:"remind_at"`
	ErrorReason   string `json:"error_reason"`
	FailedAt      string `json:"failed_at"`
}

type auditEvent struct {
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

// Handle matches kafkax.Handler. Duplicate deliveries are filtered by the
// consumer inbox before they get here.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case kafkax.TopicAppointmentBooked, kafkax.TopicAppointmentStatusChanged:
		var evt appointmentEvent
		if err := decode(msg, &evt); err != nil {
			return err
		}
		return p.appointment(ctx, msg.Topic, evt)
	case kafkax.TopicNotificationSent, kafkax.TopicNotificationFailed:
		var evt notificationEvent
		if err := decode(msg, &evt); err != nil {
			return err
		}
		return p.notification(ctx, msg.Topic == kafkax.TopicNotificationSent, evt)
	case kafkax.TopicReminderDueDLQ:
		var evt dlqEvent
		if err := decode(msg, &evt); err != nil {
			return err
		}
		return p.deadLetter(ctx, evt)
	case kafkax.TopicAuthAudit:
		var evt auditEvent
		if err := decode(msg, &evt); err != nil {
			return err
		}
		return p.audit(ctx, evt)
	default:
		return fmt.Errorf("%w: unexpected topic %s", kafkax.ErrSkip, msg.Topic)
	}
}

func decode(msg kafka.Message, v any) error {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return fmt.Errorf("%w: %v", kafkax.ErrSkip, err)
	}
	return nil
}

func (p *Projector) appointment(ctx context.Context, topic string, evt appointmentEvent) error {
	var booked, cancelled, completed int
	switch {
	case topic == kafkax.TopicAppointmentBooked:
		booked = 1
	case evt.Status == "CANCELLED":
		cancelled = 1
	case evt.Status == "COMPLETED":
		completed = 1
	default:
		return nil
	}
	day, err := p.day(evt.OccurredAt)
	if err != nil {
		return err
	}
	_, err = p.q.Exec(ctx, `
		INSERT INTO daily_appointment_metrics (day, booked_count, cancelled_count, completed_count)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (day)
		DO UPDATE SET booked_count = daily_appointment_metrics.booked_count + EXCLUDED.booked_count,
		              cancelled_count = daily_appointment_metrics.cancelled_count + EXCLUDED.cancelled_count,
		              completed_count = daily_appointment_metrics.completed_count + EXCLUDED.completed_count,
		              updated_at = now()
	`, day, booked, cancelled, completed)
	return err
}

func (p *Projector) notification(ctx context.Context, sent bool, evt notificationEvent) error {
	ts, sentInc, failedInc := evt.FailedAt, 0, 1
	if sent {
		ts, sentInc, failedInc = evt.SentAt, 1, 0
	}
	day, err := p.day(ts)
	if err != nil {
		return err
	}
	if evt.Kind == "" {
		evt.Kind = "unknown"
	}
	_, err = p.q.Exec(ctx, `
		INSERT INTO daily_notification_metrics (day, kind, sent_count, failed_count)
		VALUES ($1::date, $2, $3, $4)
		ON CONFLICT (day, kind)
		DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
		              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
		              updated_at = now()
	`, day, evt.Kind, sentInc, failedInc)
	return err
}

func (p *Projector) deadLetter(ctx context.Context, evt dlqEvent) error {
	remindAt, err1 := time.Parse(time.RFC3339, evt.RemindAt)
	failedAt, err2 := time.Parse(time.RFC3339, evt.FailedAt)
	if evt.AppointmentID == "" || err1 != nil || err2 != nil {
		return fmt.Errorf("%w: incomplete dlq event", kafkax.ErrSkip)
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO scheduler_dlq_events (appointment_id, recipient, remind_at, error_reason, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.AppointmentID, evt.Recipient, remindAt, evt.ErrorReason, failedAt)
	if err == nil {
		p.logger.Warn("reminder dead-lettered", "appointment_id", evt.AppointmentID, "reason", evt.ErrorReason)
	}
	return err
}

func (p *Projector) audit(ctx context.Context, evt auditEvent) error {
	createdAt, err := time.Parse(time.RFC3339, evt.CreatedAt)
	if evt.EventType == "" || err != nil {
		return fmt.Errorf("%w: incomplete audit event", kafkax.ErrSkip)
	}
	metadata := []byte(evt.Metadata)
	if len(metadata) == 0 || string(metadata) == "null" {
		metadata = []byte("{}")
	}
	_, err = p.q.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, $2, $3, $4)
	`, evt.EventType, evt.ActorID, metadata, createdAt)
	return err
}

// day returns the YYYY-MM-DD of an RFC 3339 timestamp in the studio zone.
func (p *Projector) day(ts string) (string, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", fmt.Errorf("%w: timestamp %q", kafkax.ErrSkip, ts)
	}
	return t.In(p.loc).Format(time.DateOnly), nil
}
