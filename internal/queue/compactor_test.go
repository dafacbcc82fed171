// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCompactor_RunNow(t *testing.T) {
	s := setupStore(t)
	clock := newTestClock(s)

	complete(t, s, "impl", "old", 10)
	clock.Advance(time.Duration(s.Config().RetentionDays+1) * 24 * time.Hour)

	c := NewCompactor(s)
	before := testutil.ToFloat64(cleanupRuns)

	if removed := c.RunNow(context.Background()); removed != 1 {
		t.Errorf("RunNow removed %d, want 1", removed)
	}
	last, removed := c.LastRun()
	if last.IsZero() || removed != 1 {
		t.Errorf("LastRun = %v, %d", last, removed)
	}
	if got := testutil.ToFloat64(cleanupRuns) - before; got != 1 {
		t.Errorf("cleanup runs counter moved by %v, want 1", got)
	}
}

func TestCompactor_StartStop(t *testing.T) {
	s := setupStore(t)
	s.config.CleanupInterval = 10 * time.Millisecond
	c := NewCompactor(s)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsRunning() {
		t.Fatal("compactor should be running")
	}
	// Second start is a no-op.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if last, _ := c.LastRun(); !last.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("compactor never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	c.Stop()
	if c.IsRunning() {
		t.Error("compactor should be stopped")
	}
}

func TestStoreMetrics(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	enqueued := testutil.ToFloat64(tasksEnqueued.WithLabelValues("metrics-agent"))
	completed := testutil.ToFloat64(tasksCompleted.WithLabelValues("metrics-agent"))

	id := enqueue(t, s, "metrics-agent", "k", 5)
	if _, err := s.Dequeue(ctx, "metrics-agent", "supervisor"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkCompleted(ctx, id, 250); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(tasksEnqueued.WithLabelValues("metrics-agent")) - enqueued; got != 1 {
		t.Errorf("enqueued delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(tasksCompleted.WithLabelValues("metrics-agent")) - completed; got != 1 {
		t.Errorf("completed delta = %v, want 1", got)
	}
}
