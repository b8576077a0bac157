package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/auth"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/audit"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/storage"
)

type UserStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByEmail(ctx context.Context, email string) (storage.AdminUser, error)
	GetByID(ctx context.Context, id string) (storage.AdminUser, error)
	UpdatePassword(ctx context.Context, tx pgx.Tx, id, passwordHash string) error
}

type AuditLog interface {
	Record(ctx context.Context, q db.Querier, eventType, actorID string, metadata map[string]any) error
	ListRecent(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

type Config struct {
	Secret   string
	TokenTTL time.Duration
}

type AuthHandler struct {
	users  UserStore
	audit  AuditLog
	logger *slog.Logger
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthHandler(users UserStore, auditLog AuditLog, logger *slog.Logger, cfg Config) *AuthHandler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	return &AuthHandler{
		users:  users,
		audit:  auditLog,
		logger: logger,
		secret: cfg.Secret,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/login", h.Login)
	mux.HandleFunc("/api/v1/auth/me", h.Me)
	mux.HandleFunc("/api/v1/auth/password", h.ChangePassword)
	mux.HandleFunc("/api/v1/auth/audit", h.Audit)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	Email       string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type meResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("admin lookup failed", "err", err)
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	if err != nil || auth.VerifyPassword(user.PasswordHash, req.Password) != nil {
		h.record(ctx, audit.EventLoginFailed, user.ID, map[string]any{"email": req.Email})
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	now := h.now()
	claims := auth.NewClaims(user.ID, user.Email, auth.RoleAdmin, now, h.ttl)
	token, err := auth.SignHS256(claims, h.secret)
	if err != nil {
		h.logger.Error("token signing failed", "err", err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	h.record(ctx, audit.EventLoginSucceeded, user.ID, nil)

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.UTC().Format(time.RFC3339),
		Email:       user.Email,
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{UserID: user.ID, Email: user.Email, Role: auth.RoleAdmin})
}

// ChangePassword requires the current password; the update and its audit
// record commit together.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) != nil {
		http.Error(w, "current password is incorrect", http.StatusForbidden)
		return
	}
	if err := auth.ValidateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	tx, err := h.users.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.users.UpdatePassword(ctx, tx, user.ID, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("password update failed", "err", err)
		http.Error(w, "failed to update password", http.StatusInternalServerError)
		return
	}
	if err := h.audit.Record(ctx, tx, audit.EventPasswordChanged, user.ID, nil); err != nil {
		h.logger.Error("audit record failed", "err", err)
		http.Error(w, "failed to update password", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	params := r.URL.Query()
	q := audit.Query{Type: params.Get("type")}
	if v := params.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := params.Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "before must be a positive event id", http.StatusBadRequest)
			return
		}
		q.Before = n
	}
	events, err := h.audit.ListRecent(r.Context(), q)
	if err != nil {
		http.Error(w, "failed to load audit events", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

// authenticate resolves the bearer token to a stored admin. A token for a
// deleted admin is rejected even before it expires.
func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request) (storage.AdminUser, bool) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return storage.AdminUser{}, false
	}
	claims, err := auth.ParseAndVerifyHS256(token, h.secret)
	if err != nil || claims.Role != auth.RoleAdmin {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return storage.AdminUser{}, false
	}
	user, err := h.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return storage.AdminUser{}, false
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return storage.AdminUser{}, false
	}
	return user, true
}

func (h *AuthHandler) record(ctx context.Context, eventType, actorID string, metadata map[string]any) {
	if err := h.audit.Record(ctx, nil, eventType, actorID, metadata); err != nil {
		h.logger.Warn("audit record failed", "event", eventType, "err", err)
	}
}
