// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import "time"

// SlowTask is one row of the slowest-tasks view.
type SlowTask struct {
	TaskID         string    `json:"task_id"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Kind           string    `json:"kind"`
	Priority       int       `json:"priority"`
	DurationMillis int64     `json:"duration_ms"`
	CompletedAt    time.Time `json:"completed_at"`
}

// AgentStats aggregates Completed and Failed tasks for one recipient.
type AgentStats struct {
	AgentID       string  `json:"agent_id"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	TotalFinished int     `json:"total_finished"`
	AvgMillis     float64 `json:"avg_ms"`
	MedianMillis  int64   `json:"median_ms"`
	MaxMillis     int64   `json:"max_ms"`
	FailureRate   float64 `json:"failure_rate"`
}

// QueueDepth counts Queued tasks for one agent by priority band.
type QueueDepth struct {
	AgentID string `json:"agent_id"`
	High    int    `json:"high"`
	Normal  int    `json:"normal"`
	Low     int    `json:"low"`
	Total   int    `json:"total"`
}

// Add counts one queued task of the given priority.
func (d *QueueDepth) Add(priority int) {
	switch BandFor(priority) {
	case BandHigh:
		d.High++
	case BandNormal:
		d.Normal++
	default:
		d.Low++
	}
	d.Total++
}

// Percentiles summarizes Completed durations.
type Percentiles struct {
	Count int   `json:"count"`
	P50   int64 `json:"p50_ms"`
	P95   int64 `json:"p95_ms"`
	P99   int64 `json:"p99_ms"`
}

// BottleneckReport is the payload of GET /api/v1/bottlenecks.
type BottleneckReport struct {
	Slowest     []SlowTask  `json:"slowest"`
	Percentiles Percentiles `json:"percentiles"`
}

// AgentMetrics is the payload of GET /api/v1/agents/{id}/metrics.
type AgentMetrics struct {
	Stats   AgentStats     `json:"stats"`
	Depth   QueueDepth     `json:"queue_depth"`
	Samples []MetricSample `json:"samples,omitempty"`
}

// MetricSample is an append-only observation of a per-agent counter.
type MetricSample struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Metric names recorded by the sampler.
const (
	MetricTasksCompleted = "tasks_completed"
	MetricTasksFailed    = "tasks_failed"
	MetricAvgDurationMS  = "avg_duration_ms"
	MetricQueueDepth     = "queue_depth"
	MetricCPUPercent     = "cpu_percent"
	MetricMemoryMB       = "memory_mb"
)
