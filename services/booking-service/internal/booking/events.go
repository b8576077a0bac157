package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/calendar"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

const aggregateType = "appointment"

// AppointmentEvent is the payload of every booking.appointment.* event.
type AppointmentEvent struct {
	AppointmentID  string       `json:"appointment_id"`
	ServiceID      string       `json:"service_id"`
	ServiceName    string       `json:"service_name"`
	ClientName     string       `json:"client_name"`
	ClientWhatsapp string       `json:"client_whatsapp"`
	Date           string       `json:"date"`
	Time           string       `json:"time"`
	Status         model.Status `json:"status"`
	PreviousDate   string       `json:"previous_date,omitempty"`
	PreviousTime   string       `json:"previous_time,omitempty"`
	PreviousStatus model.Status `json:"previous_status,omitempty"`
	OccurredAt     string       `json:"occurred_at"`
}

// ReminderRequest is the payload of booking.reminder.requested.v1.
type ReminderRequest struct {
	AppointmentID  string            `json:"appointment_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Channel        string            `json:"channel"`
	Recipient      string            `json:"recipient"`
	RemindAt       string            `json:"remind_at"`
	Slot           string            `json:"slot"`
	OffsetMinutes  int               `json:"offset_minutes"`
	TemplateData   map[string]string `json:"template_data"`
}

// Slot identifies the date and time an appointment occupies, "2025-06-10T14:00".
func Slot(date, clock string) string {
	return date + "T" + clock
}

func appointmentEvent(eventType string, appt model.Appointment, prev *model.Appointment, now time.Time) (outbox.Event, error) {
	payload := AppointmentEvent{
		AppointmentID:  appt.ID,
		ServiceID:      appt.ServiceID,
		ServiceName:    appt.ServiceName,
		ClientName:     appt.ClientName,
		ClientWhatsapp: appt.ClientWhatsapp,
		Date:           appt.Date,
		Time:           appt.Time,
		Status:         appt.Status,
		OccurredAt:     now.UTC().Format(time.RFC3339),
	}
	if prev != nil {
		payload.PreviousDate = prev.Date
		payload.PreviousTime = prev.Time
		payload.PreviousStatus = prev.Status
	}
	return outbox.NewEvent(aggregateType, appt.ID, eventType, payload)
}

// reminderEvents emits one request per offset whose reminder time is still in
// the future. Appointment times are read in loc.
func reminderEvents(appt model.Appointment, offsets []time.Duration, loc *time.Location, now time.Time) ([]outbox.Event, error) {
	at, err := calendar.At(appt.Date, appt.Time, loc)
	if err != nil {
		return nil, fmt.Errorf("appointment time: %w", err)
	}
	slot := Slot(appt.Date, appt.Time)

	var events []outbox.Event
	for _, offset := range offsets {
		remindAt := at.Add(-offset)
		if !remindAt.After(now) {
			continue
		}
		mins := int(offset / time.Minute)
		evt, err := outbox.NewEvent(aggregateType, appt.ID, kafkax.TopicReminderRequested, ReminderRequest{
			AppointmentID:  appt.ID,
			IdempotencyKey: appt.ID + ":" + slot + ":" + strconv.Itoa(mins),
			Channel:        "whatsapp",
			Recipient:      appt.ClientWhatsapp,
			RemindAt:       remindAt.UTC().Format(time.RFC3339),
			Slot:           slot,
			OffsetMinutes:  mins,
			TemplateData: map[string]string{
				"client_name":  appt.ClientName,
				"service_name": appt.ServiceName,
				"date":         appt.Date,
				"time":         appt.Time,
			},
		})
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

// eventWriter stores events in the caller's transaction.
type eventWriter func(ctx context.Context, q db.Querier, events ...outbox.Event) error
