// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package services

import (
	"context"
	"fmt"
)

// StartStopper matches background components with a Start/Stop lifecycle.
//
// Satisfied by *queue.Compactor.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// CompactorService wraps the task store compactor as a supervised service.
//
// The compactor periodically deletes Completed and Failed tasks past the
// retention window and triggers Badger value log GC.
//
//  1. Calls Start(ctx) to begin the retention loop
//  2. Waits for context cancellation
//  3. Calls Stop(), which waits for the loop goroutine
type CompactorService struct {
	compactor StartStopper
	name      string
}

// NewCompactorService creates a new compactor service wrapper.
func NewCompactorService(compactor StartStopper) *CompactorService {
	return &CompactorService{
		compactor: compactor,
		name:      "task-compactor",
	}
}

// Serve implements suture.Service. A Start failure is returned so suture
// restarts the service with backoff.
func (s *CompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("task compactor start failed: %w", err)
	}

	<-ctx.Done()
	s.compactor.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for suture's log messages.
func (s *CompactorService) String() string {
	return s.name
}
