// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package metrics provides the supervisor-wide Prometheus metrics.

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://127.0.0.1:7478/metrics

# Available Metrics

Worker Metrics (label agent_id):
  - foreman_worker_status: 1 for the current state label (starting, alive, crashed, retired_failed)
  - foreman_worker_restarts_total: crash-triggered respawns
  - foreman_worker_spawn_failures_total: processes that failed to start
  - foreman_worker_crashes_total: missed liveness checks
  - foreman_worker_cpu_percent, foreman_worker_memory_mb: last resource sample
  - foreman_worker_inbox_depth: deliveries not yet written to stdin
  - foreman_tasks_delivered_total: tasks handed over by the coordination loop

Coordination Loop Metrics:
  - foreman_loop_ticks_total, foreman_loop_tick_duration_seconds
  - foreman_loop_phase_errors_total (label phase)
  - foreman_circuit_breaker_state, foreman_circuit_breaker_transitions_total

Alert Metrics:
  - foreman_alerts_emitted_total (labels kind, severity)
  - foreman_alerts_suppressed_total (label kind)

HTTP Metrics:
  - foreman_http_requests_total, foreman_http_request_duration_seconds
  - foreman_http_requests_in_flight, foreman_http_rate_limit_hits_total

Task store metrics (foreman_tasks_*, foreman_store_*) are registered by
internal/queue next to the code that records them.

# Usage

	metrics.SetWorkerStatus("impl", models.WorkerAlive)
	metrics.RecordWorkerRestart("impl")

	start := time.Now()
	// ... tick ...
	metrics.RecordLoopTick(time.Since(start))
*/
package metrics
