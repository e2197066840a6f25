// Package metrics exposes Prometheus instrumentation for research runs.
// Collectors register on the default registry; serve them with
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexus_runs_started_total",
		Help: "Research runs started.",
	})

	RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_runs_completed_total",
		Help: "Research runs finished, by outcome.",
	}, []string{"outcome"}) // completed, forced, error, cancelled

	RetriesTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexus_retries_triggered_total",
		Help: "Retry rounds triggered by the confidence gate.",
	})

	SearchRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_search_rounds_total",
		Help: "Retrieval rounds executed, by tool and result.",
	}, []string{"tool", "result"}) // result: ok, failed

	FinalConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_final_confidence",
		Help:    "Final answer confidence scores.",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_run_duration_seconds",
		Help:    "Wall-clock duration of research runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	RunIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexus_run_iterations",
		Help:    "Retrieval iterations per run.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
)
