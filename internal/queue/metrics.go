// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for task store operations
var (
	tasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_enqueued_total",
		Help: "Total number of tasks enqueued, by recipient",
	}, []string{"recipient"})

	tasksDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_dequeued_total",
		Help: "Total number of tasks moved from Queued to Running, by recipient",
	}, []string{"recipient"})

	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_completed_total",
		Help: "Total number of tasks completed, by recipient",
	}, []string{"recipient"})

	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_failed_total",
		Help: "Total number of tasks failed, by recipient",
	}, []string{"recipient"})

	tasksOrphaned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_tasks_orphaned_total",
		Help: "Total number of Running tasks failed because their worker died or timed out",
	}, []string{"recipient"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foreman_task_duration_seconds",
		Help:    "Recorded duration of completed tasks",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"recipient"})

	storeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_store_txn_conflicts_total",
		Help: "Transactions retried after a serializable conflict",
	}, []string{"op"})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foreman_store_errors_total",
		Help: "Task store operations that failed with an IO or storage error",
	}, []string{"op"})

	storeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foreman_store_op_latency_seconds",
		Help:    "Task store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	cleanupRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_store_cleanup_removed_total",
		Help: "Finished tasks removed by retention passes",
	})

	cleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foreman_store_cleanup_runs_total",
		Help: "Retention passes run by the compactor",
	})
)

// RecordEnqueued increments the enqueue counter.
func RecordEnqueued(recipient string) {
	tasksEnqueued.WithLabelValues(recipient).Inc()
}

// RecordDequeued increments the dequeue counter.
func RecordDequeued(recipient string) {
	tasksDequeued.WithLabelValues(recipient).Inc()
}

// RecordCompleted increments the completion counter and observes the duration.
func RecordCompleted(recipient string, durationMillis int64) {
	tasksCompleted.WithLabelValues(recipient).Inc()
	taskDuration.WithLabelValues(recipient).Observe(float64(durationMillis) / 1000)
}

// RecordFailed increments the failure counter.
func RecordFailed(recipient string) {
	tasksFailed.WithLabelValues(recipient).Inc()
}

// RecordOrphaned increments the orphan counter.
func RecordOrphaned(recipient string) {
	tasksOrphaned.WithLabelValues(recipient).Inc()
}

// RecordConflict increments the conflict retry counter.
func RecordConflict(op string) {
	storeConflicts.WithLabelValues(op).Inc()
}

// RecordStoreError increments the store error counter.
func RecordStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

// RecordStoreLatency observes an operation latency.
func RecordStoreLatency(op string, seconds float64) {
	storeLatency.WithLabelValues(op).Observe(seconds)
}

// RecordCleanupRemoved adds to the retention counter.
func RecordCleanupRemoved(n int) {
	cleanupRemoved.Add(float64(n))
}

// RecordCleanupRun increments the compactor run counter.
func RecordCleanupRun() {
	cleanupRuns.Inc()
}
