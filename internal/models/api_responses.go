// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// APIResponse is the envelope every control API endpoint returns.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example success response:
//
//	{
//	  "status": "success",
//	  "data": {"task_id": "0b7c..."},
//	  "metadata": {"timestamp": "2026-10-15T12:00:00Z", "query_time_ms": 2}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "data": null,
//	  "metadata": {"timestamp": "2026-10-15T12:00:00Z"},
//	  "error": {"code": "INVALID_TRANSITION", "message": "task 0b7c...: cannot move Completed -> Completed"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError represents an error response with structured error details.
//
// Fields:
//   - Code: Machine-readable error code (e.g., "VALIDATION_ERROR", "TASK_NOT_FOUND")
//   - Message: Human-readable error message
//   - Details: Additional context (field names, constraints, etc.)
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// EnqueueRequest is the body of POST /api/v1/tasks.
type EnqueueRequest struct {
	Sender    string          `json:"sender" validate:"required,max=64"`
	Recipient string          `json:"recipient" validate:"required,max=64"`
	Kind      string          `json:"kind" validate:"required,max=128"`
	Priority  int             `json:"priority" validate:"min=1,max=10"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EnqueueResponse is returned by POST /api/v1/tasks.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
}

// StartRequest is the body of POST /api/v1/tasks/{id}/start.
type StartRequest struct {
	Owner string `json:"owner" validate:"omitempty,max=64"`
}

// CompleteRequest is the body of POST /api/v1/tasks/{id}/complete.
// A zero DurationMillis asks the store to measure wall-clock duration. A
// reported duration may not exceed the time since the task started.
type CompleteRequest struct {
	DurationMillis int64 `json:"duration_ms" validate:"min=0"`
}

// FailRequest is the body of POST /api/v1/tasks/{id}/fail.
type FailRequest struct {
	ErrorMessage string `json:"error" validate:"required,max=4096"`
}

// CleanupRequest is the body of POST /api/v1/cleanup.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days" validate:"min=0"`
}

// CleanupResponse reports how many tasks a retention pass removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// ShutdownRequest is the body of POST /api/v1/shutdown.
type ShutdownRequest struct {
	Force bool `json:"force"`
}
