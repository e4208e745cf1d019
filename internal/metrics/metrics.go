// Package metrics holds the Prometheus collectors of the booking engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors.  A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ReservationsTotal    *prometheus.CounterVec
	ReserveDuration      *prometheus.HistogramVec
	ReleasesTotal        *prometheus.CounterVec
	TransitionsTotal     *prometheus.CounterVec
	RetriesTotal         *prometheus.CounterVec
	NotificationFailures prometheus.Counter
	IdempotentReplays    prometheus.Counter
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New registers the collectors with reg.  Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReservationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_reservations_total",
			Help: "Reserve attempts by resource kind and outcome",
		}, []string{"kind", "outcome"}),

		ReserveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booking_reserve_duration_seconds",
			Help:    "Time spent in the reserve transaction",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		ReleasesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_releases_total",
			Help: "Release calls by outcome",
		}, []string{"outcome"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking state transitions",
		}, []string{"from", "to"}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_tx_retries_total",
			Help: "Transactions retried after a lock conflict",
		}, []string{"op"}),

		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_notification_failures_total",
			Help: "Booking events that could not be handed to the notifier",
		}),

		IdempotentReplays: f.NewCounter(prometheus.CounterOpts{
			Name: "booking_idempotent_replays_total",
			Help: "Create requests answered from a stored idempotency key",
		}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "booking_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveReserve(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(kind, outcome).Inc()
	m.ReserveDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveRelease(outcome string) {
	if m == nil {
		return
	}
	m.ReleasesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveNotificationFailure() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}

func (m *Metrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplays.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
