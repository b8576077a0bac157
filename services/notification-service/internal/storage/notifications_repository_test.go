package storage

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
)

func TestRecordWritesNotificationAndEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	evt, err := outbox.NewEvent("notification", "a1", "notification.sent.v1", map[string]string{"kind": "reminder"})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("a1", "reminder", "whatsapp", "+55", "oi", "https://wa.me/55?text=oi", StatusSent, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("notification", "a1", "notification.sent.v1", []byte(`{"kind":"reminder"}`), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), Notification{
		AppointmentID: "a1", Kind: "reminder", Channel: "whatsapp", Recipient: "+55",
		Message: "oi", Link: "https://wa.me/55?text=oi", Status: StatusSent,
	}, evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookups(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery("FROM appointments").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = repo.Appointment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("FROM appointments").WithArgs("a1").WillReturnRows(
		pgxmock.NewRows([]string{"service_name", "client_name", "client_whatsapp", "date", "time", "status"}).
			AddRow("Volume Russo", "Ana", "+55", "2025-06-10", "14:00", "SCHEDULED"))
	a, err := repo.Appointment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "14:00", a.Time)

	mock.ExpectQuery("FROM profiles").WillReturnError(pgx.ErrNoRows)
	s, err := repo.Studio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Studio{}, s)
}
