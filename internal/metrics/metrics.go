// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline Metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebot_turns_total",
			Help: "Total number of handled conversation turns by outcome",
		},
		[]string{"outcome"}, // "answered", "rejected", "degraded", "failed"
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recipebot_turn_duration_seconds",
			Help:    "End-to-end duration of a conversation turn in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebot_stage_failures_total",
			Help: "Absorbed failures per pipeline stage",
		},
		[]string{"stage"}, // "classify", "extract", "rank", "compose"
	)

	RankedItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recipebot_ranked_items",
			Help:    "Number of recipes surfaced per turn",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	// Inference Metrics
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recipebot_inference_duration_seconds",
			Help:    "Duration of language inference calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	InferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebot_inference_errors_total",
			Help: "Total number of failed language inference calls",
		},
		[]string{"mode"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recipebot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebot_circuit_breaker_requests_total",
			Help: "Requests passed through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Storage Metrics
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipebot_storage_errors_total",
			Help: "Total number of conversation store errors",
		},
		[]string{"operation"},
	)
)
