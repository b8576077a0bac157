package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveWrite("book", "ok", 0.01)
	m.ObserveWrite("book", "slot_taken", 0.02)
	m.ObserveWrite("book", "ok", 0.01)
	m.ObserveAvailability("available")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.availability.WithLabelValues("available")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var b *BookingMetrics
	var s *SchedulerMetrics
	var n *NotificationMetrics
	b.ObserveWrite("book", "ok", 1)
	b.ObserveAvailability("taken")
	s.IncJobs("dead", 1)
	s.SetClaimed(3)
	n.ObserveDelivery("reminder", "sent", 1)
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	NewSchedulerMetrics(reg).IncJobs("dispatched", 2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ciliosdeluxo_scheduler_jobs_total{outcome="dispatched"} 2`))
	assert.Contains(t, body, "go_goroutines")
}
