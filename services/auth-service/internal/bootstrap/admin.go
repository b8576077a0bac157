package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/auth"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/audit"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/storage"
)

type AdminStore interface {
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, email, passwordHash string) (storage.AdminUser, error)
}

type Recorder interface {
	Record(ctx context.Context, q db.Querier, eventType, actorID string, metadata map[string]any) error
}

// EnsureAdmin creates the first admin account when none exists. It does
// nothing once any admin is present, so restarting with different
// credentials never overwrites an account.
func EnsureAdmin(ctx context.Context, store AdminStore, rec Recorder, email, password string, logger *slog.Logger) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := auth.ValidateNewPassword(password, password); err != nil {
		return false, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	user, err := store.Create(ctx, email, hash)
	if errors.Is(err, storage.ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger.Info("admin account created", "email", user.Email)
	if rec != nil {
		if err := rec.Record(ctx, nil, audit.EventAdminBootstrap, user.ID, map[string]any{"email": user.Email}); err != nil {
			logger.Warn("audit record failed", "err", err)
		}
	}
	return true, nil
}
