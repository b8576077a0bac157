package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// AdminIDHeader carries the authenticated admin from the gateway to the
// services behind it.
const AdminIDHeader = "X-Admin-Id"

var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *responseRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// WithAccessLog logs one line per request, at error level for 5xx and warn
// for 4xx. Probes and /metrics are not logged. Admin requests carry the
// admin id so changes to the agenda can be traced to a person.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("bytes", rec.bytes),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("client", clientKey(r)),
			}
			if admin := r.Header.Get(AdminIDHeader); admin != "" {
				attrs = append(attrs, slog.String("admin_id", admin))
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
