package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knee_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Questionnaire metrics
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_sessions_started_total",
			Help: "Total assessment sessions started",
		},
		[]string{"channel"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_submissions_total",
			Help: "Total answers submitted, by the step they answered",
		},
		[]string{"step"},
	)

	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_outcomes_total",
			Help: "Eligibility results shown",
		},
		[]string{"result"}, // "eligible" or "ineligible"
	)

	Resets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knee_resets_total",
			Help: "Total session resets",
		},
	)

	RepliesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "knee_replies_delivered_total",
			Help: "Bot replies appended after the typing delay",
		},
	)

	RepliesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_replies_dropped_total",
			Help: "Bot replies that were never delivered",
		},
		[]string{"reason"}, // "cancelled", "stale", "unhandled"
	)

	Referrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knee_referrals_total",
			Help: "Referrals recorded",
		},
		[]string{"kind"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knee_store_latency_seconds",
			Help:    "Storage operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
