package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/scheduler-service/internal/jobs"
)

func newHandler(t *testing.T) (*Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewHandler(mock, jobs.NewRepository(), nil, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func msg(topic, value string) kafka.Message {
	return kafka.Message{Topic: topic, Value: []byte(value)}
}

func TestReminderRequestedUpsertsJob(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectExec("INSERT INTO scheduler_jobs").
		WithArgs("a1:2025-06-10T14:00:60", "a1", "whatsapp", "+55", pgxmock.AnyArg(), "2025-06-10T14:00", 60, pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := h.Handle(context.Background(), msg(kafkax.TopicReminderRequested, `{
		"appointment_id":"a1","idempotency_key":"a1:2025-06-10T14:00:60","recipient":"+55",
		"remind_at":"2025-06-10T16:00:00Z","slot":"2025-06-10T14:00","offset_minutes":60}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadPayloadsAreSkipped(t *testing.T) {
	h, _ := newHandler(t)
	for _, m := range []kafka.Message{
		msg(kafkax.TopicReminderRequested, `not json`),
		msg(kafkax.TopicReminderRequested, `{"appointment_id":"a1"}`),
		msg(kafkax.TopicReminderRequested, `{"appointment_id":"a1","idempotency_key":"k","recipient":"+55","remind_at":"tomorrow"}`),
		msg(kafkax.TopicAppointmentDeleted, `{}`),
		msg("other.topic", `{}`),
	} {
		assert.True(t, errors.Is(h.Handle(context.Background(), m), kafkax.ErrSkip), string(m.Value))
	}
}

func TestRescheduleKeepsNewSlot(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs("a1", "2025-06-11T10:00").WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := h.Handle(context.Background(), msg(kafkax.TopicAppointmentRescheduled,
		`{"appointment_id":"a1","date":"2025-06-11","time":"10:00","status":"SCHEDULED"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusChanges(t *testing.T) {
	h, mock := newHandler(t)

	require.NoError(t, h.Handle(context.Background(), msg(kafkax.TopicAppointmentStatusChanged,
		`{"appointment_id":"a1","date":"2025-06-11","time":"10:00","status":"SCHEDULED"}`)))

	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs("a1", "").WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	require.NoError(t, h.Handle(context.Background(), msg(kafkax.TopicAppointmentStatusChanged,
		`{"appointment_id":"a1","date":"2025-06-11","time":"10:00","status":"CANCELLED"}`)))

	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs("a1", "").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.NoError(t, h.Handle(context.Background(), msg(kafkax.TopicAppointmentDeleted, `{"appointment_id":"a1"}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
