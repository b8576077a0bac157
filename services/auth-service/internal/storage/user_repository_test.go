package storage

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetByEmailIsCaseInsensitive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewUserRepository(mock)

	mock.ExpectQuery(`lower\(email\) = lower\(\$1\)`).WithArgs("Admin@Cilios.test").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash"}).AddRow("u1", "admin@cilios.test", "h"))
	u, err := repo.GetByEmail(context.Background(), " Admin@Cilios.test ")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	mock.ExpectQuery("FROM admin_users").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsDuplicateEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewUserRepository(mock)

	mock.ExpectQuery("INSERT INTO admin_users").WithArgs("a@b.c", "h").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, err = repo.Create(context.Background(), "a@b.c", "h")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUpdatePasswordMissingUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewUserRepository(mock)

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	mock.ExpectExec("UPDATE admin_users").WithArgs("u9", "h").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), tx, "u9", "h"), ErrNotFound)
}
