// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package client

import (
	"fmt"

	"github.com/tomtom215/foreman/internal/models"
)

// APIError is an error response from the control API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// codeSentinels maps API error codes back to the model taxonomy.
var codeSentinels = map[string]error{
	"TASK_NOT_FOUND":     models.ErrTaskNotFound,
	"UNKNOWN_AGENT":      models.ErrUnknownAgent,
	"INVALID_TRANSITION": models.ErrInvalidTransition,
	"ALREADY_RUNNING":    models.ErrAlreadyRunning,
	"INVALID_ARGUMENT":   models.ErrInvalidArgument,
	"VALIDATION_ERROR":   models.ErrInvalidArgument,
	"STORE_UNAVAILABLE":  models.ErrStoreUnavailable,
}

// Is reports whether the response code corresponds to target.
func (e *APIError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}
