// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import "time"

// WorkerStatus is the health state of a Worker Registration.
type WorkerStatus string

const (
	WorkerStarting      WorkerStatus = "starting"
	WorkerAlive         WorkerStatus = "alive"
	WorkerCrashed       WorkerStatus = "crashed"
	WorkerRetiredFailed WorkerStatus = "retired_failed"
)

// ResourceUsage is a point-in-time CPU and memory reading for a process.
type ResourceUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
}

// WorkerInfo is a read-only snapshot of one Worker Registration.
type WorkerInfo struct {
	AgentID         string        `json:"agent_id"`
	Status          WorkerStatus  `json:"status"`
	PID             int           `json:"pid,omitempty"`
	RestartCount    int           `json:"restart_count"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time    `json:"last_heartbeat_at,omitempty"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	Usage           ResourceUsage `json:"usage"`
	InboxDepth      int           `json:"inbox_depth"`
	LastError       string        `json:"last_error,omitempty"`
}

// StatusReport is the payload of GET /api/v1/status.
type StatusReport struct {
	StartedAt     time.Time    `json:"started_at"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Workers       []WorkerInfo `json:"workers"`
}
