package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
)

var (
	ErrNotFound   = errors.New("admin user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type AdminUser struct {
	ID           string
	Email        string
	PasswordHash string
}

type UserRepository struct {
	pool db.DBTX
}

func NewUserRepository(pool db.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM admin_users`).Scan(&n)
	return n, err
}

// Create inserts an admin; emails are unique regardless of case.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (AdminUser, error) {
	u := AdminUser{Email: strings.TrimSpace(email), PasswordHash: passwordHash}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO admin_users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id::text
	`, u.Email, u.PasswordHash).Scan(&u.ID)
	if db.IsUniqueViolation(err) {
		return AdminUser{}, ErrEmailTaken
	}
	return u, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (AdminUser, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash
		FROM admin_users
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (AdminUser, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash
		FROM admin_users
		WHERE id = $1
	`, id))
}

// UpdatePassword runs inside tx so the audit record commits with it.
func (r *UserRepository) UpdatePassword(ctx context.Context, tx pgx.Tx, id, passwordHash string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE admin_users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (AdminUser, error) {
	var u AdminUser
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash); err != nil {
		if db.IsNotFound(err) {
			return AdminUser{}, ErrNotFound
		}
		return AdminUser{}, err
	}
	return u, nil
}
