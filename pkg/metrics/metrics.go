// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisionsTotal counts gate decisions by outcome and path class
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of access gate decisions",
		},
		[]string{"outcome", "reason", "class"},
	)

	// MessagesPostedTotal counts messages written to threads by kind
	MessagesPostedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "conversation",
			Name:      "messages_posted_total",
			Help:      "Total number of messages posted",
		},
		[]string{"kind"},
	)

	MessagesRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "conversation",
			Name:      "messages_rate_limited_total",
			Help:      "Total number of messages rejected by the sender rate limit",
		},
	)

	// AccessRequestTransitionsTotal counts access request lifecycle changes
	AccessRequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "access",
			Name:      "request_transitions_total",
			Help:      "Total number of access request transitions by resulting status",
		},
		[]string{"status"},
	)

	// BadgeCacheTotal counts badge lookups by cache result
	BadgeCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "notifications",
			Name:      "badge_cache_total",
			Help:      "Badge lookups by cache result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts served requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks handler latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

func RecordGateDecision(outcome, reason, class string) {
	GateDecisionsTotal.WithLabelValues(outcome, reason, class).Inc()
}

func RecordMessagePosted(kind string) {
	MessagesPostedTotal.WithLabelValues(kind).Inc()
}

func RecordRateLimited() {
	MessagesRateLimitedTotal.Inc()
}

func RecordAccessTransition(status string) {
	AccessRequestTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordBadgeCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	BadgeCacheTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(method, route string, statusCode int, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
