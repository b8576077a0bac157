package main

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/auth"
)

const testSecret = "test-secret"

// fakeBackend echoes which backend answered and the admin header it saw.
func fakeBackend(t *testing.T, name string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", name)
		w.Header().Set("X-Seen-Admin", r.Header.Get("X-Admin-Id"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newGateway(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	registerRoutes(mux, routeConfig{
		AuthURL:      fakeBackend(t, "auth"),
		StudioURL:    fakeBackend(t, "studio"),
		BookingURL:   fakeBackend(t, "booking"),
		AnalyticsURL: fakeBackend(t, "analytics"),
		JWTSecret:    testSecret,
	})
	return mux
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.NewClaims("admin-1", "dona@cilios.test", role, time.Now(), time.Hour), testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return tok
}

func do(h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("X-Admin-Id", "spoofed")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestRouting(t *testing.T) {
	gw := newGateway(t)
	admin := token(t, auth.RoleAdmin)

	cases := []struct {
		method, path, bearer string
		code                 int
		backend              string
	}{
		{http.MethodPost, "/api/v1/auth/login", "", http.StatusOK, "auth"},
		{http.MethodGet, "/api/v1/auth/me", "", http.StatusOK, "auth"},
		{http.MethodGet, "/api/v1/public/slots?date=2099-06-10", "", http.StatusOK, "booking"},
		{http.MethodPost, "/api/v1/public/book", "", http.StatusOK, "booking"},
		{http.MethodGet, "/api/v1/studio/services", "", http.StatusOK, "studio"},
		{http.MethodPost, "/api/v1/studio/services", "", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/studio/services", admin, http.StatusOK, "studio"},
		{http.MethodGet, "/api/v1/studio/clients", "", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/studio/clients", admin, http.StatusOK, "studio"},
		{http.MethodGet, "/api/v1/appointments", "", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/appointments/stats", admin, http.StatusOK, "booking"},
		{http.MethodGet, "/api/v1/appointments", token(t, "client"), http.StatusForbidden, ""},
		{http.MethodGet, "/api/v1/appointments", "badtoken", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/analytics/daily", "", http.StatusUnauthorized, ""},
		{http.MethodGet, "/api/v1/analytics/daily", admin, http.StatusOK, "analytics"},
	}
	for _, tc := range cases {
		rw := do(gw, tc.method, tc.path, tc.bearer)
		if rw.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.code, rw.Code)
		}
		if got := rw.Header().Get("X-Backend"); got != tc.backend {
			t.Fatalf("%s %s: expected backend %q, got %q", tc.method, tc.path, tc.backend, got)
		}
	}
}

func TestAdminIdentityIsForwardedNotSpoofed(t *testing.T) {
	gw := newGateway(t)

	rw := do(gw, http.MethodGet, "/api/v1/appointments", token(t, auth.RoleAdmin))
	if got := rw.Header().Get("X-Seen-Admin"); got != "admin-1" {
		t.Fatalf("expected admin-1, got %q", got)
	}

	for _, path := range []string{"/api/v1/studio/profile", "/api/v1/public/book", "/api/v1/auth/login", "/api/v1/public/slots"} {
		rw = do(gw, http.MethodGet, path, "")
		if got := rw.Header().Get("X-Seen-Admin"); got != "" {
			t.Fatalf("%s: expected spoofed header to be dropped, got %q", path, got)
		}
	}
}

func TestStrictLimiterWrapsBookAndLogin(t *testing.T) {
	var hits []string
	mux := http.NewServeMux()
	registerRoutes(mux, routeConfig{
		AuthURL:      fakeBackend(t, "auth"),
		StudioURL:    fakeBackend(t, "studio"),
		BookingURL:   fakeBackend(t, "booking"),
		AnalyticsURL: fakeBackend(t, "analytics"),
		JWTSecret:    testSecret,
		Strict: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits = append(hits, r.URL.Path)
				next.ServeHTTP(w, r)
			})
		},
	})

	for _, p := range []string{"/api/v1/public/book", "/api/v1/auth/login", "/api/v1/public/slots", "/api/v1/auth/me"} {
		do(mux, http.MethodPost, p, "")
	}
	if strings.Join(hits, ",") != "/api/v1/public/book,/api/v1/auth/login" {
		t.Fatalf("unexpected strict hits: %v", hits)
	}
}

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	raw, err := fs.ReadFile(openAPISpec, "assets/gateway.v1.yaml")
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Paths map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("openapi yaml invalid: %v", err)
	}
	for _, p := range []string{
		"/api/v1/auth/login", "/api/v1/public/book", "/api/v1/public/slots",
		"/api/v1/studio/hours", "/api/v1/appointments/reschedule",
	} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}

	rw := do(newGateway(t), http.MethodGet, "/openapi", "")
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "openapi: 3.0.3") {
		t.Fatalf("unexpected /openapi response %d", rw.Code)
	}
}
