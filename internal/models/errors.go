// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown to the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAlreadyRunning is returned when starting an agent whose process is still alive.
	ErrAlreadyRunning = errors.New("agent already running")

	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("task store closed")

	// ErrInvalidTransition matches any *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrStoreUnavailable matches any *StoreUnavailableError.
	ErrStoreUnavailable = errors.New("task store unavailable")

	// ErrRetryCeilingExceeded matches any *RetryCeilingExceededError.
	ErrRetryCeilingExceeded = errors.New("retry ceiling exceeded")

	// ErrUnknownAgent is returned for an agent id with no registration.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrInvalidArgument is returned for malformed input that passed decoding.
	ErrInvalidArgument = errors.New("invalid argument")
)

// InvalidTransitionError reports a mark-* call on a task not in the required state.
type InvalidTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot move %s -> %s", e.TaskID, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// SpawnError reports that a worker process could not be started.
type SpawnError struct {
	AgentID string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn agent %s: %v", e.AgentID, e.Err)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// StoreUnavailableError wraps a disk or IO failure of the task store.
// It is transient: the coordination loop retries on the next tick.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("task store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrStoreUnavailable.
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// RetryCeilingExceededError reports a worker retired after exhausting its respawns.
type RetryCeilingExceededError struct {
	AgentID  string
	Restarts int
}

func (e *RetryCeilingExceededError) Error() string {
	return fmt.Sprintf("agent %s retired after %d restarts", e.AgentID, e.Restarts)
}

// Is matches ErrRetryCeilingExceeded.
func (e *RetryCeilingExceededError) Is(target error) bool {
	return target == ErrRetryCeilingExceeded
}
