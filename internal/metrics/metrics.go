// Package metrics holds the Prometheus collectors shared by the worker and
// the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline runs by kind (video, burn) and outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclips_runs_total",
		Help: "Total number of pipeline runs, by kind and outcome",
	}, []string{"kind", "outcome"})

	// StageDuration observes how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "viralclips_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// ClipsProducedTotal counts clips persisted by pipeline runs.
	ClipsProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viralclips_clips_produced_total",
		Help: "Total number of clips produced",
	})

	// SegmentsSkippedTotal counts analyzer segments dropped for invalid bounds.
	SegmentsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viralclips_segments_skipped_total",
		Help: "Total number of analyzer segments skipped because end <= start",
	})

	// CleanupFailuresTotal counts best-effort cleanup actions that failed.
	CleanupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclips_cleanup_failures_total",
		Help: "Total number of best-effort cleanup failures, by action",
	}, []string{"action"})

	// BlobsDeletedTotal counts objects removed by cleanup tasks.
	BlobsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclips_blobs_deleted_total",
		Help: "Total number of blob objects deleted, by reason",
	}, []string{"reason"})

	// ActiveWorkers is the number of tasks currently being handled.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viralclips_active_workers",
		Help: "Number of currently active workers processing tasks",
	})

	// TasksTotal counts queue deliveries by task kind and result.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclips_tasks_total",
		Help: "Total number of queue deliveries handled, by kind and result",
	}, []string{"kind", "result"})

	// HTTPRequestsTotal counts API requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viralclips_http_requests_total",
		Help: "Total number of HTTP requests, by method, route and status",
	}, []string{"method", "route", "status"})
)
