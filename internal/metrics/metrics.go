// Package metrics holds the Prometheus instruments for lishe.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Recommendation engine
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_recommendations_total",
			Help: "Recommendations produced, by health goal",
		},
		[]string{"goal"},
	)

	EngineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lishe_engine_duration_seconds",
			Help:    "Time spent ranking foods for one request",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	FeedbackRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_feedback_total",
			Help: "Feedback submissions, by outcome",
		},
		[]string{"result"}, // "recorded", "rejected"
	)

	// Reminder sweep
	RemindersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_reminders_total",
			Help: "Reminder dispatch attempts, by outcome",
		},
		[]string{"result"}, // "sent", "failed", "skipped"
	)

	ReminderSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lishe_reminder_sweep_duration_seconds",
			Help:    "Duration of reminder sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lishe_records",
			Help: "Stored recommendation records, by lifecycle state",
		},
		[]string{"state"},
	)

	// Notifier
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_notifications_total",
			Help: "Outgoing notifications, by backend and result",
		},
		[]string{"backend", "result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lishe_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Catalog
	CatalogRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lishe_catalog_rows",
			Help: "Rows in the current catalog snapshot",
		},
	)

	CatalogReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_catalog_reloads_total",
			Help: "Catalog reload attempts, by outcome",
		},
		[]string{"result"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lishe_http_requests_total",
			Help: "HTTP requests, by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lishe_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// RecordHTTP records one finished request.
func RecordHTTP(route, method string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
