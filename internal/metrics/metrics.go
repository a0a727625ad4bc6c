// Package metrics exposes the Prometheus collectors for C11 (health + metrics).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompletionsStarted counts accepted completion requests.
	CompletionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_started_total",
			Help: "Total number of completion requests accepted into the orchestrator.",
		},
		[]string{"stream"},
	)

	// CompletionsFinished counts completions reaching a terminal state.
	CompletionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_requests_finished_total",
			Help: "Total number of completions reaching a terminal state.",
		},
		[]string{"outcome"}, // done, upstream_failed, client_gone, internal_error, rejected_limit, rejected_input
	)

	// CompletionDuration records end-to-end latency of one completion.
	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "completion_duration_seconds",
			Help:    "Duration of a completion from Accepted to a terminal state.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TimeToFirstByte records latency from Streaming start to the first forwarded delta.
	TimeToFirstByte = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "completion_time_to_first_byte_seconds",
			Help:    "Latency from upstream open to first client-visible byte.",
			Buckets: []float64{.05, .1, .25, .5, .75, 1, 2, 5},
		},
	)

	// InFlightCompletions tracks concurrently streaming completions.
	InFlightCompletions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "completion_requests_in_flight",
			Help: "Number of completions currently in the Streaming or Draining state.",
		},
	)

	// RateLimitRejections counts requests rejected by C9.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope"}, // global, completion
	)

	// CacheHits/CacheMisses track C3 user cache efficiency.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "user_cache_hits_total",
			Help: "Total number of user cache lookups served without a loader call.",
		},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "user_cache_misses_total",
			Help: "Total number of user cache lookups that invoked the loader.",
		},
	)

	// CompressorFallbacks counts C5 invocations that fell back to the one-line summary.
	CompressorFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compressor_fallbacks_total",
			Help: "Total number of intelligence-compressor invocations that used the fallback summary.",
		},
	)

	// CommitFailures counts best-effort side-effect commit failures (C10), by operation.
	CommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commit_failures_total",
			Help: "Total number of failed side-effect commit operations.",
		},
		[]string{"operation"}, // memory, emotion, task
	)

	// TasksDequeued/TasksFinished track C12 task-runner throughput.
	TasksDequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_dequeued_total",
			Help: "Total number of tasks dequeued by the task runner.",
		},
	)
	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_finished_total",
			Help: "Total number of tasks reaching completed or failed.",
		},
		[]string{"status"},
	)
)
