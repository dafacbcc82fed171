// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
)

// Error codes carried in models.APIError.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeUnknownAgent      = "UNKNOWN_AGENT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyRunning    = "ALREADY_RUNNING"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotSupported      = "NOT_SUPPORTED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ErrShutdownUnavailable is returned when no shutdown hook is installed.
var ErrShutdownUnavailable = errors.New("shutdown is not available")

// classifyError maps an error from the store or registry to a status and code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		return http.StatusNotFound, CodeTaskNotFound
	case errors.Is(err, models.ErrUnknownAgent):
		return http.StatusNotFound, CodeUnknownAgent
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, models.ErrAlreadyRunning):
		return http.StatusConflict, CodeAlreadyRunning
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrStoreClosed):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondStoreError writes the classified error. Client errors are not logged
// as server failures.
func respondStoreError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		respondError(w, status, code, err.Error(), err)
		return
	}
	respondError(w, status, code, err.Error(), nil)
}

// respondTaskError is respondStoreError for requests naming a task. Rejected
// lookups and transitions are logged at warn with the task id and code so a
// misbehaving worker shows up in the daemon log.
func respondTaskError(w http.ResponseWriter, r *http.Request, taskID string, err error) {
	status, code := classifyError(err)
	if status < http.StatusInternalServerError {
		logging.Ctx(r.Context()).Warn().
			Str("task_id", sanitizeLogValue(taskID)).
			Str("code", code).
			Int("status", status).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("Task request rejected")
	}
	respondStoreError(w, err)
}
