package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ciliosdeluxo"

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BookingMetrics covers the booking flow. All methods are no-ops on nil.
type BookingMetrics struct {
	bookings     *prometheus.CounterVec
	availability *prometheus.CounterVec
	writeLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointment writes by operation and outcome",
		}, []string{"operation", "outcome"}),
		availability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "availability_checks_total",
			Help:      "Availability evaluations by verdict",
		}, []string{"verdict"}),
		writeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "write_duration_seconds",
			Help:      "Latency of appointment write transactions",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.availability, m.writeLatency)
	return m
}

func (m *BookingMetrics) ObserveWrite(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, outcome).Inc()
	m.writeLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveAvailability(verdict string) {
	if m == nil {
		return
	}
	m.availability.WithLabelValues(verdict).Inc()
}

// SchedulerMetrics covers the reminder job worker.
type SchedulerMetrics struct {
	jobs    *prometheus.CounterVec
	pending prometheus.Gauge
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Reminder jobs by outcome (scheduled, dispatched, retried, dead, cancelled)",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_claimed",
			Help:      "Jobs claimed by the last worker poll",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.jobs, m.pending)
	return m
}

func (m *SchedulerMetrics) IncJobs(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobs.WithLabelValues(outcome).Add(float64(n))
}

func (m *SchedulerMetrics) SetClaimed(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// NotificationMetrics covers message delivery.
type NotificationMetrics struct {
	sent     *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by kind and status",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "send_duration_seconds",
			Help:      "Time spent in the delivery sender",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sent, m.duration)
	return m
}

func (m *NotificationMetrics) ObserveDelivery(kind, status string, seconds float64) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind, status).Inc()
	m.duration.Observe(seconds)
}
