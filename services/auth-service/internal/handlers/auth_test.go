package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/auth"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/audit"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/auth-service/internal/storage"
)

const secret = "test-secret"

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeUsers struct {
	byID map[string]storage.AdminUser
	tx   *fakeTx
}

func (f *fakeUsers) Begin(context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (storage.AdminUser, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return storage.AdminUser{}, storage.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (storage.AdminUser, error) {
	u, ok := f.byID[id]
	if !ok {
		return storage.AdminUser{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, _ pgx.Tx, id, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.PasswordHash = hash
	f.byID[id] = u
	return nil
}

type recorded struct {
	eventType string
	inTx      bool
}

type fakeAudit struct {
	events []recorded
	query  audit.Query
}

func (f *fakeAudit) Record(_ context.Context, q db.Querier, eventType, _ string, _ map[string]any) error {
	f.events = append(f.events, recorded{eventType: eventType, inTx: q != nil})
	return nil
}

func (f *fakeAudit) ListRecent(_ context.Context, q audit.Query) ([]audit.Event, error) {
	f.query = q
	return []audit.Event{{ID: 1, EventType: audit.EventLoginSucceeded}}, nil
}

func newHandler(t *testing.T) (*AuthHandler, *fakeUsers, *fakeAudit) {
	t.Helper()
	hash, err := auth.HashPassword("segredo1")
	require.NoError(t, err)
	users := &fakeUsers{byID: map[string]storage.AdminUser{
		"u1": {ID: "u1", Email: "admin@cilios.test", PasswordHash: hash},
	}}
	log := &fakeAudit{}
	h := NewAuthHandler(users, log, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Secret: secret, TokenTTL: time.Hour})
	return h, users, log
}

func serve(h *AuthHandler, method, path, body, token string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.NewClaims(sub, "admin@cilios.test", auth.RoleAdmin, time.Now(), time.Hour), secret)
	require.NoError(t, err)
	return token
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	h, _, log := newHandler(t)
	rec := serve(h, http.MethodPost, "/api/v1/auth/login", `{"email":" ADMIN@cilios.test ","password":"segredo1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"token_type":"Bearer"`)

	start := strings.Index(rec.Body.String(), `"access_token":"`) + len(`"access_token":"`)
	token := rec.Body.String()[start:]
	token = token[:strings.Index(token, `"`)]
	claims, err := auth.ParseAndVerifyHS256(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)

	require.Len(t, log.events, 1)
	assert.Equal(t, audit.EventLoginSucceeded, log.events[0].eventType)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, _, log := newHandler(t)
	for _, body := range []string{
		`{"email":"admin@cilios.test","password":"errada"}`,
		`{"email":"nobody@cilios.test","password":"segredo1"}`,
	} {
		rec := serve(h, http.MethodPost, "/api/v1/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.Len(t, log.events, 2)
	assert.Equal(t, audit.EventLoginFailed, log.events[1].eventType)

	rec := serve(h, http.MethodPost, "/api/v1/auth/login", `{"email":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(h, http.MethodGet, "/api/v1/auth/login", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMeRequiresLiveAdmin(t *testing.T) {
	h, _, _ := newHandler(t)

	rec := serve(h, http.MethodGet, "/api/v1/auth/me", "", adminToken(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"admin@cilios.test"`)

	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/auth/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/auth/me", "", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/auth/me", "", adminToken(t, "gone")).Code)

	expired, err := auth.SignHS256(auth.NewClaims("u1", "", auth.RoleAdmin, time.Now().Add(-2*time.Hour), time.Hour), secret)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/auth/me", "", expired).Code)
}

func TestChangePassword(t *testing.T) {
	h, users, log := newHandler(t)
	token := adminToken(t, "u1")

	rec := serve(h, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"errada","new_password":"novasenha","confirm_password":"novasenha"}`, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"segredo1","new_password":"abc","confirm_password":"abc"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"segredo1","new_password":"novasenha","confirm_password":"outra"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/v1/auth/password",
		`{"current_password":"segredo1","new_password":"novasenha","confirm_password":"novasenha"}`, token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.True(t, users.tx.committed)
	assert.NoError(t, auth.VerifyPassword(users.byID["u1"].PasswordHash, "novasenha"))

	last := log.events[len(log.events)-1]
	assert.Equal(t, audit.EventPasswordChanged, last.eventType)
	assert.True(t, last.inTx)
}

func TestAuditListRequiresToken(t *testing.T) {
	h, _, _ := newHandler(t)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/api/v1/auth/audit", "", "").Code)

	rec := serve(h, http.MethodGet, "/api/v1/auth/audit?limit=10", "", adminToken(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), audit.EventLoginSucceeded)
}

func TestAuditListPassesFilters(t *testing.T) {
	h, _, log := newHandler(t)
	rec := serve(h, http.MethodGet, "/api/v1/auth/audit?type=login.failed&before=40&limit=5", "", adminToken(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audit.Query{Type: audit.EventLoginFailed, Before: 40, Limit: 5}, log.query)

	rec = serve(h, http.MethodGet, "/api/v1/auth/audit?before=abc", "", adminToken(t, "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
