package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_http_requests_total",
			Help: "Handled HTTP requests by method, path and status code",
		},
		[]string{"method", "path", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scan_http_request_duration_seconds",
			Help:    "Request handling time by path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	workLeases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_worker_lease_outcomes_total",
			Help: "get_work outcomes",
		},
		[]string{"outcome"}, // dispatched, deduplicated, dropped_invalid, empty
	)

	resultsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_worker_results_accepted_total",
			Help: "Completed results ingested through post_result",
		},
	)
)
