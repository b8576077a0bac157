// Package delivery turns scheduler and booking events into WhatsApp messages.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/whatsapp"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/sender"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/storage"
)

const (
	KindReminder     = "reminder"
	KindBookingAlert = "booking_alert"
)

// Topics lists everything the notification service consumes.
var Topics = []string{kafkax.TopicReminderDue, kafkax.TopicAppointmentBooked}

type Store interface {
	Appointment(ctx context.Context, id string) (storage.Appointment, error)
	Studio(ctx context.Context) (storage.Studio, error)
	Record(ctx context.Context, n storage.Notification, evt outbox.Event) error
}

type Config struct {
	// SendAttempts bounds provider calls per message. Defaults to 3.
	SendAttempts int
	SendBackoff  time.Duration
}

type Service struct {
	store    Store
	sender   sender.Sender
	metrics  *metrics.NotificationMetrics
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

func NewService(store Store, s sender.Sender, m *metrics.NotificationMetrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = 3
	}
	if cfg.SendBackoff <= 0 {
		cfg.SendBackoff = time.Second
	}
	return &Service{
		store:    store,
		sender:   s,
		metrics:  m,
		logger:   logger,
		attempts: cfg.SendAttempts,
		backoff:  cfg.SendBackoff,
		now:      time.Now,
	}
}

type reminderDue struct {
	AppointmentID string `json:"appointment_id"`
	Slot          string `json:"slot"`
	OffsetMinutes int    `json:"offset_minutes"`
}

type appointmentBooked struct {
	AppointmentID  string `json:"appointment_id"`
	ServiceName    string `json:"service_name"`
	ClientName     string `json:"client_name"`
	ClientWhatsapp string `json:"client_whatsapp"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// Handle matches kafkax.Handler.
func (s *Service) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case kafkax.TopicReminderDue:
		var due reminderDue
		if err := json.Unmarshal(msg.Value, &due); err != nil || due.AppointmentID == "" {
			return fmt.Errorf("%w: invalid reminder payload", kafkax.ErrSkip)
		}
		return s.remind(ctx, due)
	case kafkax.TopicAppointmentBooked:
		var evt appointmentBooked
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
			return fmt.Errorf("%w: invalid booking payload", kafkax.ErrSkip)
		}
		return s.alert(ctx, evt)
	default:
		return fmt.Errorf("%w: unexpected topic %s", kafkax.ErrSkip, msg.Topic)
	}
}

// remind messages the client. The appointment is re-read first: a reminder
// computed for a slot the appointment no longer holds, or for an appointment
// that is no longer SCHEDULED, is dropped.
func (s *Service) remind(ctx context.Context, due reminderDue) error {
	appt, err := s.store.Appointment(ctx, due.AppointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("reminder dropped, appointment gone", "appointment_id", due.AppointmentID)
		return nil
	}
	if err != nil {
		return err
	}
	if appt.Status != "SCHEDULED" || appt.Date+"T"+appt.Time != due.Slot {
		s.logger.Info("reminder dropped, appointment changed",
			"appointment_id", appt.ID, "status", appt.Status, "slot", due.Slot)
		return nil
	}

	studio, err := s.store.Studio(ctx)
	if err != nil {
		return err
	}
	body := whatsapp.ReminderMessage(whatsapp.Details{
		StudioName:    studio.Name,
		StudioAddress: studio.Address,
		ClientName:    appt.ClientName,
		ServiceName:   appt.ServiceName,
		Date:          appt.Date,
		Time:          appt.Time,
	})
	return s.deliver(ctx, KindReminder, appt.ID, appt.ClientWhatsapp, body)
}

// alert tells the studio about a new booking.
func (s *Service) alert(ctx context.Context, evt appointmentBooked) error {
	studio, err := s.store.Studio(ctx)
	if err != nil {
		return err
	}
	if whatsapp.DigitsOnly(studio.Whatsapp) == "" {
		s.logger.Warn("booking alert skipped, studio has no whatsapp", "appointment_id", evt.AppointmentID)
		return nil
	}
	body := whatsapp.NewBookingAlert(whatsapp.Details{
		StudioName:  studio.Name,
		ClientName:  evt.ClientName,
		ServiceName: evt.ServiceName,
		Date:        evt.Date,
		Time:        evt.Time,
	}, evt.ClientWhatsapp)
	return s.deliver(ctx, KindBookingAlert, evt.AppointmentID, studio.Whatsapp, body)
}

func (s *Service) deliver(ctx context.Context, kind, appointmentID, to, body string) error {
	n := storage.Notification{
		AppointmentID: appointmentID,
		Kind:          kind,
		Channel:       "whatsapp",
		Recipient:     to,
		Message:       body,
		Link:          whatsapp.Link(to, body),
		Status:        storage.StatusSent,
	}

	start := s.now()
	var sendErr error
	if whatsapp.DigitsOnly(to) == "" {
		sendErr = errors.New("recipient has no phone digits")
	} else {
		sendErr = s.send(ctx, sender.Message{To: whatsapp.DigitsOnly(to), Body: body, Link: n.Link})
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
	}
	s.metrics.ObserveDelivery(kind, n.Status, s.now().Sub(start).Seconds())

	evt, err := s.outcomeEvent(n)
	if err != nil {
		return err
	}
	if err := s.store.Record(ctx, n, evt); err != nil {
		return err
	}
	s.logger.Info("notification processed", "appointment_id", appointmentID, "kind", kind, "status", n.Status)
	return nil
}

func (s *Service) send(ctx context.Context, msg sender.Message) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.sender.Send(ctx, msg); err == nil {
			return nil
		}
		s.logger.Warn("whatsapp send failed", "err", err, "attempt", attempt)
		if errors.Is(err, sender.ErrPermanent) {
			return err
		}
		if attempt < s.attempts {
			t := time.NewTimer(s.backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return err
}

func (s *Service) outcomeEvent(n storage.Notification) (outbox.Event, error) {
	at := s.now().UTC().Format(time.RFC3339)
	payload := map[string]any{
		"appointment_id": n.AppointmentID,
		"kind":           n.Kind,
		"channel":        n.Channel,
		"link":           n.Link,
	}
	topic := kafkax.TopicNotificationSent
	if n.Status == storage.StatusFailed {
		topic = kafkax.TopicNotificationFailed
		payload["error_reason"] = n.Error
		payload["failed_at"] = at
	} else {
		payload["provider_id"] = s.sender.ProviderID()
		payload["sent_at"] = at
	}
	return outbox.NewEvent("notification", n.AppointmentID, topic, payload)
}
