// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server updates.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	ActivityLogsTotal *prometheus.CounterVec
	Registrations     prometheus.Counter
	LoginFailures     prometheus.Counter
	SharesTotal       prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry, so independent instances
// (one per test server) never collide.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ActivityLogsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_logs_recorded_total",
				Help:      "Activity log entries recorded, by kind",
			},
			[]string{"kind"},
		),
		Registrations: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Successful user registrations",
			},
		),
		LoginFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_failures_total",
				Help:      "Rejected login attempts",
			},
		),
		SharesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "share_reports_total",
				Help:      "Share reports generated",
			},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The helpers below are nil-safe so components can run without metrics.

func (m *Metrics) ActivityLogged(kind string) {
	if m == nil {
		return
	}
	m.ActivityLogsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registered() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

func (m *Metrics) LoginFailed() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}

func (m *Metrics) Shared() {
	if m == nil {
		return
	}
	m.SharesTotal.Inc()
}
