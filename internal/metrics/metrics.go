// Package metrics holds the Prometheus collectors for the engine
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal tracks completed analyses
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medic_analyses_total",
			Help: "Total number of completed error analyses",
		},
		[]string{"classification", "severity"},
	)

	// AnalysisLatency tracks end-to-end analysis duration
	AnalysisLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medic_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"classification"},
	)

	// RemediationsTotal tracks remediation attempts by outcome
	RemediationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medic_remediations_total",
			Help: "Total number of remediation attempts",
		},
		[]string{"strategy", "outcome"},
	)

	// AICallsTotal tracks AI diagnosis calls by outcome
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medic_ai_calls_total",
			Help: "Total number of AI diagnosis calls",
		},
		[]string{"outcome"},
	)

	// AICallsInFlight tracks AI calls currently past the concurrency cap
	AICallsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medic_ai_calls_in_flight",
			Help: "Number of AI calls currently in flight",
		},
	)

	// CapturesTotal tracks events received per capture channel
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medic_captures_total",
			Help: "Total number of failure events captured",
		},
		[]string{"channel"},
	)

	// CapturesDropped tracks events dropped because the queue was full
	CapturesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medic_captures_dropped_total",
			Help: "Total number of captured events dropped on a full queue",
		},
		[]string{"channel"},
	)

	// QueueDepth tracks events waiting for analysis
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medic_capture_queue_depth",
			Help: "Number of captured events waiting for analysis",
		},
	)

	// PersistFailures tracks analyses that could not be stored
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medic_persist_failures_total",
			Help: "Total number of analysis records that failed to persist",
		},
	)
)

// Outcome converts a success flag into the outcome label
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
