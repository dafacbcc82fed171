// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/foreman/internal/models"
)

// Supervisor-wide Prometheus metrics. Task store metrics live with the store
// in internal/queue.

var (
	// Worker Metrics
	WorkerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_worker_status",
			Help: "Current worker state (1 for the active state label, 0 otherwise)",
		},
		[]string{"agent_id", "status"},
	)

	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_worker_restarts_total",
			Help: "Crash-triggered respawns per agent",
		},
		[]string{"agent_id"},
	)

	WorkerSpawnFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_worker_spawn_failures_total",
			Help: "Worker processes that failed to start",
		},
		[]string{"agent_id"},
	)

	WorkerCrashes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_worker_crashes_total",
			Help: "Missed liveness checks that moved a worker to crashed",
		},
		[]string{"agent_id"},
	)

	WorkerCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_worker_cpu_percent",
			Help: "Last sampled CPU usage of the worker process",
		},
		[]string{"agent_id"},
	)

	WorkerMemoryMB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_worker_memory_mb",
			Help: "Last sampled resident memory of the worker process in MB",
		},
		[]string{"agent_id"},
	)

	WorkerInboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_worker_inbox_depth",
			Help: "Delivered tasks waiting to be written to the worker's stdin",
		},
		[]string{"agent_id"},
	)

	TasksDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_tasks_delivered_total",
			Help: "Tasks handed to a worker inbox by the coordination loop",
		},
		[]string{"agent_id"},
	)

	// Coordination Loop Metrics
	LoopTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_loop_ticks_total",
			Help: "Coordination loop iterations",
		},
	)

	LoopTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_loop_tick_duration_seconds",
			Help:    "Duration of one coordination loop iteration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	LoopPhaseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_loop_phase_errors_total",
			Help: "Errors caught inside a coordination loop phase",
		},
		[]string{"phase"}, // health, dispatch, analytics
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Alert Metrics
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_alerts_emitted_total",
			Help: "Alerts emitted, by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_alerts_suppressed_total",
			Help: "Repeated alerts dropped by the repeat limiter",
		},
		[]string{"kind"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_http_requests_total",
			Help: "Control API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_http_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_http_requests_in_flight",
			Help: "Control API requests currently being served",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_http_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Metric Sample Store
	SamplesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_metric_samples_recorded_total",
			Help: "Rows appended to the metric sample table",
		},
	)

	SampleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_metric_sample_errors_total",
			Help: "Metric sample store failures",
		},
		[]string{"operation"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foreman_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_app_uptime_seconds",
			Help: "Supervisor uptime in seconds",
		},
	)
)

var workerStatuses = []models.WorkerStatus{
	models.WorkerStarting,
	models.WorkerAlive,
	models.WorkerCrashed,
	models.WorkerRetiredFailed,
}

// SetWorkerStatus sets the status gauge so exactly one label per agent is 1.
func SetWorkerStatus(agentID string, status models.WorkerStatus) {
	for _, s := range workerStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		WorkerStatus.WithLabelValues(agentID, string(s)).Set(v)
	}
}

// RecordWorkerRestart records a crash-triggered respawn
func RecordWorkerRestart(agentID string) {
	WorkerRestarts.WithLabelValues(agentID).Inc()
}

// RecordSpawnFailure records a worker process that failed to start
func RecordSpawnFailure(agentID string) {
	WorkerSpawnFailures.WithLabelValues(agentID).Inc()
}

// RecordWorkerCrash records a missed liveness check
func RecordWorkerCrash(agentID string) {
	WorkerCrashes.WithLabelValues(agentID).Inc()
}

// UpdateWorkerUsage records the last resource sample for a worker
func UpdateWorkerUsage(agentID string, usage models.ResourceUsage) {
	WorkerCPUPercent.WithLabelValues(agentID).Set(usage.CPUPercent)
	WorkerMemoryMB.WithLabelValues(agentID).Set(usage.MemoryMB)
}

// UpdateInboxDepth records how many deliveries are waiting for a worker
func UpdateInboxDepth(agentID string, depth int) {
	WorkerInboxDepth.WithLabelValues(agentID).Set(float64(depth))
}

// RecordDelivery records a task handed to a worker inbox
func RecordDelivery(agentID string) {
	TasksDelivered.WithLabelValues(agentID).Inc()
}

// RecordLoopTick records one coordination loop iteration
func RecordLoopTick(duration time.Duration) {
	LoopTicks.Inc()
	LoopTickDuration.Observe(duration.Seconds())
}

// RecordLoopPhaseError records an error caught inside a loop phase
func RecordLoopPhaseError(phase string) {
	LoopPhaseErrors.WithLabelValues(phase).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordAlert records an emitted alert
func RecordAlert(kind models.AlertKind, severity models.Severity) {
	AlertsEmitted.WithLabelValues(string(kind), string(severity)).Inc()
}

// RecordAlertSuppressed records a repeat dropped by the limiter
func RecordAlertSuppressed(kind models.AlertKind) {
	AlertsSuppressed.WithLabelValues(string(kind)).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRateLimitHit records a request rejected by the rate limiter
func RecordRateLimitHit(endpoint string) {
	APIRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordSamples records rows appended to the sample table
func RecordSamples(n int) {
	SamplesRecorded.Add(float64(n))
}

// RecordSampleError records a sample store failure
func RecordSampleError(operation string) {
	SampleErrors.WithLabelValues(operation).Inc()
}

// SetAppInfo publishes the build version
func SetAppInfo(version, goVersion string) {
	AppInfo.WithLabelValues(version, goVersion).Set(1)
}

// UpdateUptime sets the uptime gauge from the supervisor start time
func UpdateUptime(startedAt time.Time) {
	AppUptime.Set(time.Since(startedAt).Seconds())
}
