// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Priority bounds.
const (
	MinPriority = 1
	MaxPriority = 10
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskQueued, TaskRunning, TaskCompleted, TaskFailed:
		return true
	}
	return false
}

// Terminal reports whether s is Completed or Failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskQueued:
		return next == TaskRunning
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Task is a unit of work addressed from one agent to another.
//
// StartedAt is set iff Status is Running, Completed or Failed.
// DurationMillis is set iff Status is Completed and always equals
// CompletedAt minus StartedAt. EndedAt is the wall-clock time of the terminal
// transition; it orders the ended index and can be later than CompletedAt
// when a worker reports its own run time.
type Task struct {
	ID             string          `json:"id"`
	Sender         string          `json:"sender"`
	Recipient      string          `json:"recipient"`
	Kind           string          `json:"kind"`
	Priority       int             `json:"priority"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         TaskStatus      `json:"status"`
	Owner          string          `json:"owner,omitempty"`
	Attempt        int             `json:"attempt"`
	RetryOf        string          `json:"retry_of,omitempty"`
	Seq            uint64          `json:"seq"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	DurationMillis *int64          `json:"duration_ms,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Band returns the queue-depth band the task's priority falls in.
func (t *Task) Band() PriorityBand {
	return BandFor(t.Priority)
}

// Delivery is the JSON line written to a worker's stdin for each dispatched task.
type Delivery struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Kind      string          `json:"kind"`
	Priority  int             `json:"priority"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Attempt   int             `json:"attempt"`
}

// DeliveryFor builds the wire form of t.
func DeliveryFor(t *Task) Delivery {
	return Delivery{
		ID:        t.ID,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Kind:      t.Kind,
		Priority:  t.Priority,
		Payload:   t.Payload,
		CreatedAt: t.CreatedAt,
		StartedAt: t.StartedAt,
		Attempt:   t.Attempt,
	}
}

// PriorityBand groups priorities for queue-depth reporting.
type PriorityBand string

const (
	BandHigh   PriorityBand = "high"
	BandNormal PriorityBand = "normal"
	BandLow    PriorityBand = "low"
)

// BandFor maps a priority to its band: 1-3 high, 4-7 normal, 8-10 low.
func BandFor(priority int) PriorityBand {
	switch {
	case priority <= 3:
		return BandHigh
	case priority <= 7:
		return BandNormal
	default:
		return BandLow
	}
}
