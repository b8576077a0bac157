package main

import (
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/auth"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
)

//go:embed assets/gateway.v1.yaml
var openAPISpec embed.FS

type routeConfig struct {
	AuthURL      *url.URL
	StudioURL    *url.URL
	BookingURL   *url.URL
	AnalyticsURL *url.URL
	JWTSecret    string

	// Strict wraps the unauthenticated write endpoints, booking and login.
	Strict httpx.Middleware
}

func registerRoutes(mux *http.ServeMux, cfg routeConfig) {
	authProxy := newProxy(cfg.AuthURL)
	studioProxy := newProxy(cfg.StudioURL)
	bookingProxy := newProxy(cfg.BookingURL)
	analyticsProxy := newProxy(cfg.AnalyticsURL)
	strict := cfg.Strict
	if strict == nil {
		strict = func(next http.Handler) http.Handler { return next }
	}

	registerProxy(mux, "/api/v1/auth", authProxy)
	mux.Handle("/api/v1/auth/login", stripIdentity(strict(authProxy)))

	registerProxy(mux, "/api/v1/public", bookingProxy)
	mux.Handle("/api/v1/public/book", stripIdentity(strict(bookingProxy)))

	// The public page reads the studio profile, services and hours; every
	// change and the client list need an admin.
	registerProxy(mux, "/api/v1/studio", adminOnWrite(studioProxy, cfg.JWTSecret))
	registerProxy(mux, "/api/v1/studio/clients", requireAdmin(studioProxy, cfg.JWTSecret))

	registerProxy(mux, "/api/v1/appointments", requireAdmin(bookingProxy, cfg.JWTSecret))
	registerProxy(mux, "/api/v1/analytics", requireAdmin(analyticsProxy, cfg.JWTSecret))

	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openAPISpec.ReadFile("assets/gateway.v1.yaml")
		if err != nil {
			http.Error(w, "openapi not available", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return p
}

// registerProxy mounts handler on prefix and its subtree. Identity headers
// from the client are always dropped; only requireAdmin sets them.
func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	handler = stripIdentity(handler)
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

const adminEmailHeader = "X-Admin-Email"

func stripIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(httpx.AdminIDHeader)
		r.Header.Del(adminEmailHeader)
		next.ServeHTTP(w, r)
	})
}

// requireAdmin verifies the bearer token and forwards the admin identity in
// X-Admin-Id and X-Admin-Email.
func requireAdmin(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if claims.Role != auth.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		r.Header.Set(httpx.AdminIDHeader, claims.Subject)
		r.Header.Set(adminEmailHeader, claims.Email)
		next.ServeHTTP(w, r)
	})
}

func adminOnWrite(next http.Handler, jwtSecret string) http.Handler {
	guarded := requireAdmin(next, jwtSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			guarded.ServeHTTP(w, r)
		}
	})
}
