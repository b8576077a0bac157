package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventColumns = []string{"id", "event_type", "actor_id", "metadata", "created_at"}

func TestRecordWritesRowAndOutboxInOneTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_events").WithArgs(EventLoginFailed, "", []byte(`{"email":"x@y.z"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("audit_event", "anonymous", "auth.audit.v1", pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), nil, EventLoginFailed, "", map[string]any{"email": "x@y.z"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRollsBackOnOutboxFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_events").WithArgs(EventPasswordChanged, "u1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("audit_event", "u1", "auth.audit.v1", pgxmock.AnyArg(), "", "").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = repo.Record(context.Background(), nil, EventPasswordChanged, "u1", nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentClampsLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectQuery(`FROM audit_events ORDER BY id DESC LIMIT \$1`).WithArgs(50).
		WillReturnRows(pgxmock.NewRows(eventColumns))
	events, err := repo.ListRecent(context.Background(), Query{Limit: 10000})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentFiltersAndPages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	mock.ExpectQuery(`WHERE event_type = \$1 AND id < \$2 ORDER BY id DESC LIMIT \$3`).
		WithArgs(EventLoginFailed, int64(40), 10).
		WillReturnRows(pgxmock.NewRows(eventColumns).
			AddRow(int64(39), EventLoginFailed, "", json.RawMessage(`{"email":"x@y.z"}`), at))

	events, err := repo.ListRecent(context.Background(), Query{Type: EventLoginFailed, Before: 40, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(39), events[0].ID)
	assert.Equal(t, time.UTC, events[0].CreatedAt.Location())
	assert.NoError(t, mock.ExpectationsWereMet())
}
