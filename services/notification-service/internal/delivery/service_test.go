package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/sender"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/notification-service/internal/storage"
)

type memStore struct {
	appts   map[string]storage.Appointment
	studio  storage.Studio
	records []storage.Notification
	events  []outbox.Event
}

func (m *memStore) Appointment(_ context.Context, id string) (storage.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return storage.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (m *memStore) Studio(context.Context) (storage.Studio, error) { return m.studio, nil }

func (m *memStore) Record(_ context.Context, n storage.Notification, evt outbox.Event) error {
	m.records = append(m.records, n)
	m.events = append(m.events, evt)
	return nil
}

type scriptedSender struct {
	fail  int
	err   error
	calls int
	sent  []sender.Message
}

func (s *scriptedSender) ProviderID() string { return "test" }

func (s *scriptedSender) Send(_ context.Context, msg sender.Message) error {
	s.calls++
	if s.fail > 0 {
		s.fail--
		if s.err != nil {
			return s.err
		}
		return errors.New("provider down")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newService(store *memStore, snd *scriptedSender) *Service {
	return NewService(store, snd, nil, slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{SendAttempts: 2, SendBackoff: time.Millisecond})
}

func fixture() *memStore {
	return &memStore{
		appts: map[string]storage.Appointment{
			"a1": {ID: "a1", ServiceName: "Volume Russo", ClientName: "Ana", ClientWhatsapp: "+55 (91) 99999-0000", Date: "2025-06-10", Time: "14:00", Status: "SCHEDULED"},
			"a2": {ID: "a2", ClientName: "Bia", ClientWhatsapp: "+55 91 98888-0000", Date: "2025-06-10", Time: "15:00", Status: "CANCELLED"},
		},
		studio: storage.Studio{Name: "Cílios de Luxo", Address: "Rua A, 10", Whatsapp: "+55 91 97777-0000"},
	}
}

func due(id, slot string) kafka.Message {
	return kafka.Message{Topic: kafkax.TopicReminderDue, Value: []byte(`{"appointment_id":"` + id + `","slot":"` + slot + `","offset_minutes":60}`)}
}

func TestReminderSentToCurrentClient(t *testing.T) {
	store, snd := fixture(), &scriptedSender{}
	require.NoError(t, newService(store, snd).Handle(context.Background(), due("a1", "2025-06-10T14:00")))

	require.Len(t, snd.sent, 1)
	assert.Equal(t, "5591999990000", snd.sent[0].To)
	assert.Contains(t, snd.sent[0].Body, "Ana")
	assert.Contains(t, snd.sent[0].Body, "10/06/2025")
	assert.Contains(t, snd.sent[0].Body, "Rua A, 10")
	assert.True(t, strings.HasPrefix(snd.sent[0].Link, "https://wa.me/5591999990000?text="))

	require.Len(t, store.records, 1)
	assert.Equal(t, storage.StatusSent, store.records[0].Status)
	assert.Equal(t, KindReminder, store.records[0].Kind)
	assert.Equal(t, kafkax.TopicNotificationSent, store.events[0].EventType)
}

func TestStaleRemindersAreDropped(t *testing.T) {
	store, snd := fixture(), &scriptedSender{}
	svc := newService(store, snd)

	require.NoError(t, svc.Handle(context.Background(), due("a1", "2025-06-09T10:00")))
	require.NoError(t, svc.Handle(context.Background(), due("a2", "2025-06-10T15:00")))
	require.NoError(t, svc.Handle(context.Background(), due("gone", "2025-06-10T15:00")))
	assert.Empty(t, snd.sent)
	assert.Empty(t, store.records)
}

func TestSendRetriesThenRecordsFailure(t *testing.T) {
	store := fixture()
	require.NoError(t, newService(store, &scriptedSender{fail: 1}).Handle(context.Background(), due("a1", "2025-06-10T14:00")))
	assert.Equal(t, storage.StatusSent, store.records[0].Status)

	store = fixture()
	require.NoError(t, newService(store, &scriptedSender{fail: 5}).Handle(context.Background(), due("a1", "2025-06-10T14:00")))
	require.Len(t, store.records, 1)
	assert.Equal(t, storage.StatusFailed, store.records[0].Status)
	assert.Equal(t, "provider down", store.records[0].Error)
	assert.Equal(t, kafkax.TopicNotificationFailed, store.events[0].EventType)
}

func TestPermanentSendFailureIsNotRetried(t *testing.T) {
	store := fixture()
	snd := &scriptedSender{fail: 5, err: errors.Join(sender.ErrPermanent, errors.New("invalid number"))}
	require.NoError(t, newService(store, snd).Handle(context.Background(), due("a1", "2025-06-10T14:00")))

	assert.Equal(t, 1, snd.calls)
	require.Len(t, store.records, 1)
	assert.Equal(t, storage.StatusFailed, store.records[0].Status)
}

func TestBookingAlertGoesToStudio(t *testing.T) {
	store, snd := fixture(), &scriptedSender{}
	msg := kafka.Message{Topic: kafkax.TopicAppointmentBooked, Value: []byte(
		`{"appointment_id":"a3","service_name":"Lifting","client_name":"Carla","client_whatsapp":"+55 91 96666-0000","date":"2025-06-11","time":"09:00"}`)}
	require.NoError(t, newService(store, snd).Handle(context.Background(), msg))

	require.Len(t, snd.sent, 1)
	assert.Equal(t, "5591977770000", snd.sent[0].To)
	assert.Contains(t, snd.sent[0].Body, "Carla")
	assert.Equal(t, KindBookingAlert, store.records[0].Kind)

	store.studio.Whatsapp = ""
	require.NoError(t, newService(store, snd).Handle(context.Background(), msg))
	assert.Len(t, snd.sent, 1)
}

func TestInvalidPayloadsAreSkipped(t *testing.T) {
	svc := newService(fixture(), &scriptedSender{})
	for _, msg := range []kafka.Message{
		{Topic: kafkax.TopicReminderDue, Value: []byte("{")},
		{Topic: kafkax.TopicAppointmentBooked, Value: []byte("{}")},
		{Topic: "x", Value: []byte("{}")},
	} {
		assert.ErrorIs(t, svc.Handle(context.Background(), msg), kafkax.ErrSkip)
	}
}
