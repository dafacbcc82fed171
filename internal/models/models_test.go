// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package models

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestTaskStatus_CanTransition(t *testing.T) {
	t.Parallel()

	all := []TaskStatus{TaskQueued, TaskRunning, TaskCompleted, TaskFailed}
	legal := map[[2]TaskStatus]bool{
		{TaskQueued, TaskRunning}:    true,
		{TaskRunning, TaskCompleted}: true,
		{TaskRunning, TaskFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]TaskStatus{from, to}]
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	t.Parallel()

	if TaskQueued.Terminal() || TaskRunning.Terminal() {
		t.Error("queued and running must not be terminal")
	}
	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
	if TaskStatus("paused").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestBandFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		priority int
		want     PriorityBand
	}{
		{1, BandHigh}, {3, BandHigh},
		{4, BandNormal}, {7, BandNormal},
		{8, BandLow}, {10, BandLow},
	}
	for _, tt := range tests {
		if got := BandFor(tt.priority); got != tt.want {
			t.Errorf("BandFor(%d) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}

func TestQueueDepth_Add(t *testing.T) {
	t.Parallel()

	var d QueueDepth
	for _, p := range []int{1, 2, 5, 9, 10} {
		d.Add(p)
	}
	if d.High != 2 || d.Normal != 1 || d.Low != 2 || d.Total != 5 {
		t.Errorf("unexpected depth: %+v", d)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	cause := io.ErrUnexpectedEOF

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"invalid transition", &InvalidTransitionError{TaskID: "t1", From: TaskCompleted, To: TaskCompleted}, ErrInvalidTransition},
		{"store unavailable", &StoreUnavailableError{Op: "dequeue", Err: cause}, ErrStoreUnavailable},
		{"store unavailable cause", &StoreUnavailableError{Op: "dequeue", Err: cause}, cause},
		{"retry ceiling", &RetryCeilingExceededError{AgentID: "impl", Restarts: 3}, ErrRetryCeilingExceeded},
		{"spawn cause", &SpawnError{AgentID: "impl", Err: cause}, cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("tick: %w", tt.err)
			if !errors.Is(wrapped, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.target)
			}
		})
	}

	var ite *InvalidTransitionError
	if !errors.As(fmt.Errorf("wrap: %w", &InvalidTransitionError{TaskID: "x"}), &ite) || ite.TaskID != "x" {
		t.Error("errors.As failed for InvalidTransitionError")
	}
	if errors.Is(&SpawnError{AgentID: "a", Err: cause}, ErrStoreUnavailable) {
		t.Error("spawn error must not match ErrStoreUnavailable")
	}
}

func TestAlertKey(t *testing.T) {
	t.Parallel()

	a := Alert{Kind: AlertQueueDepth, AgentID: "impl"}
	b := Alert{Kind: AlertQueueDepth, AgentID: "review"}
	if a.Key() == b.Key() {
		t.Error("alerts for different agents must have distinct keys")
	}
}
