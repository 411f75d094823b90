package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_coordinator_outcomes_total",
			Help: "Recognition requests by terminal coordinator state",
		},
		[]string{"outcome"}, // cache_hit, completed, timeout, bad_image, stage_failed, enqueue_failed
	)

	resultPolls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_coordinator_result_polls_total",
			Help: "Result store polls made while waiting for a worker",
		},
	)

	corruptResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_corrupt_results_deleted_total",
			Help: "Stored results removed after failing validation",
		},
	)
)
