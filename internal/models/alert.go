// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import "time"

// Severity grades an Alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityFatal    Severity = "fatal"
)

// AlertKind identifies which policy produced an Alert.
type AlertKind string

const (
	AlertSlowTask         AlertKind = "slow_task"
	AlertP95Exceeded      AlertKind = "p95_exceeded"
	AlertQueueDepth       AlertKind = "queue_depth"
	AlertFailureRate      AlertKind = "failure_rate"
	AlertResourceLimit    AlertKind = "resource_limit"
	AlertWorkerRetired    AlertKind = "worker_retired"
	AlertStoreUnavailable AlertKind = "store_unavailable"
)

// Alert is a user-visible signal raised by the supervisor.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Key identifies repeats of the same condition for throttling.
func (a *Alert) Key() string {
	return string(a.Kind) + "/" + a.AgentID + "/" + a.TaskID
}
