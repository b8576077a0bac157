package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
)

var jobColumns = []string{"id", "idempotency_key", "appointment_id", "channel", "recipient", "remind_at", "slot", "offset_minutes", "template_data", "traceparent", "tracestate", "attempts", "max_attempts", "next_run_at"}

func TestProcessBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	w := NewWorker(mock, NewRepository(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Backoff: time.Minute})
	w.now = func() time.Time { return now }

	var emitted []outbox.Event
	w.emit = func(_ context.Context, _ db.Querier, evt outbox.Event) error {
		if evt.AggregateID == "a3" && evt.EventType == kafkax.TopicReminderDue {
			return errors.New("broken")
		}
		emitted = append(emitted, evt)
		return nil
	}

	data := []byte(`{"client_name":"Ana"}`)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM scheduler_jobs").WithArgs(50).WillReturnRows(pgxmock.NewRows(jobColumns).
		AddRow(int64(1), "a1:2025-06-10T14:00:60", "a1", "whatsapp", "+55", now.Add(-time.Minute), "2025-06-10T14:00", 60, data, "", "", 0, 5, now).
		AddRow(int64(2), "a2:2025-06-10T12:00:60", "a2", "whatsapp", "+55", now.Add(-2*time.Hour), "2025-06-10T12:00", 60, data, "", "", 0, 5, now).
		AddRow(int64(3), "a3:2025-06-10T15:00:60", "a3", "whatsapp", "+55", now, "2025-06-10T15:00", 60, data, "", "", 4, 5, now))
	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs([]int64{1}, StatusProcessed).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs([]int64{2}, StatusCancelled).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs(int64(3), 5, StatusFailed, now.Add(16*time.Minute), "outbox enqueue failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := w.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, emitted, 2)
	assert.Equal(t, kafkax.TopicReminderDue, emitted[0].EventType)
	var payload ReminderDue
	require.NoError(t, json.Unmarshal(emitted[0].Payload, &payload))
	assert.Equal(t, "a1", payload.AppointmentID)
	assert.Equal(t, "2025-06-10T14:00", payload.Slot)
	assert.Equal(t, "Ana", payload.TemplateData["client_name"])

	assert.Equal(t, kafkax.TopicReminderDueDLQ, emitted[1].EventType)
	require.NoError(t, json.Unmarshal(emitted[1].Payload, &payload))
	assert.Equal(t, "max attempts reached", payload.ErrorReason)
}

func TestProcessBatchEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	w := NewWorker(mock, NewRepository(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{})
	mock.ExpectBegin()
	mock.ExpectQuery("FROM scheduler_jobs").WithArgs(50).WillReturnRows(pgxmock.NewRows(jobColumns))
	mock.ExpectCommit()

	n, err := w.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	w := NewWorker(nil, NewRepository(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Backoff: time.Minute, MaxBackoff: 10 * time.Minute})
	got := []time.Duration{w.retryDelay(1), w.retryDelay(2), w.retryDelay(3), w.retryDelay(4), w.retryDelay(5), w.retryDelay(30)}
	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 10 * time.Minute, 10 * time.Minute}
	assert.Equal(t, want, got)
}

func TestStartsAt(t *testing.T) {
	at := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	j := Job{RemindAt: at, OffsetMinutes: 1440}
	assert.Equal(t, at.Add(24*time.Hour), j.StartsAt())
}
