package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Governance pipeline metrics
var (
	// AdmissionsTotal counts requests the pipeline admitted, by route class
	// and role.
	AdmissionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_admissions_total",
			Help:      "Total number of requests admitted by the governance pipeline",
		},
		[]string{"class", "role"},
	)

	// RejectionsTotal counts rejected requests by route class and reason
	// (unauthenticated, forbidden, rate_limited).
	RejectionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governor_rejections_total",
			Help:      "Total number of requests rejected by the governance pipeline",
		},
		[]string{"class", "reason"},
	)

	// RateLimitRetryAfter records the Retry-After durations handed out on
	// rate-limited requests, in seconds.
	RateLimitRetryAfter = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "governor_rate_limit_retry_after_seconds",
			Help:      "Retry-After durations returned with rate-limited responses",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"class"},
	)
)
