// Package metrics exposes the Prometheus collectors of the indexing pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetried = "retried"
	OutcomeDropped = "dropped"
)

var (
	IndexTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemind_index_tasks_total",
		Help: "Index tasks executed, by kind and outcome.",
	}, []string{"kind", "outcome"})

	IndexTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagemind_index_task_duration_seconds",
		Help:    "Wall time of index task execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	Suggestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemind_link_suggestion_requests_total",
		Help: "Link suggestion and similarity requests, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	TagExtractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemind_tag_extractions_total",
		Help: "Tag extraction attempts on content change, by outcome.",
	}, []string{"outcome"})

	VersionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagemind_page_versions_created_total",
		Help: "Page versions appended to history.",
	})

	ReconcileEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemind_reconcile_enqueued_total",
		Help: "Tasks enqueued by the reconciler, by kind.",
	}, []string{"kind"})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemind_reconcile_runs_total",
		Help: "Reconciler sweeps, by outcome.",
	}, []string{"outcome"})
)

// ObserveTask records one executed task.
func ObserveTask(kind, outcome string, elapsed time.Duration) {
	IndexTasks.WithLabelValues(kind, outcome).Inc()
	IndexTaskDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StreamPending tracks entries delivered to the indexer group but not yet acknowledged.
var StreamPending = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pagemind_index_stream_pending",
	Help: "Pending entries of the index stream consumer group.",
})

// StreamOldestPending is how long the oldest unacknowledged index task has been idle.
var StreamOldestPending = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "pagemind_index_stream_oldest_pending_seconds",
	Help: "Idle time of the oldest pending entry of the index stream consumer group.",
})
