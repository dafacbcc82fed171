// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

// complete enqueues, starts and completes one task with the given duration.
// The store clock reads durationMillis later for the completion only.
func complete(t *testing.T, s *Store, recipient, kind string, durationMillis int64) string {
	t.Helper()
	ctx := context.Background()
	id := enqueue(t, s, recipient, kind, 5)
	if _, err := s.MarkStarted(ctx, id, recipient); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	base := s.now
	s.now = func() time.Time { return base().Add(time.Duration(durationMillis) * time.Millisecond) }
	defer func() { s.now = base }()
	if _, err := s.MarkCompleted(ctx, id, durationMillis); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	return id
}

func fail(t *testing.T, s *Store, recipient, kind string) string {
	t.Helper()
	ctx := context.Background()
	id := enqueue(t, s, recipient, kind, 5)
	if _, err := s.MarkStarted(ctx, id, recipient); err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if _, err := s.MarkFailed(ctx, id, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	return id
}

func TestSlowest_ScenarioB(t *testing.T) {
	s := setupStore(t)
	newTestClock(s)

	complete(t, s, "impl", "A", 120000)
	complete(t, s, "review", "B", 5000)
	complete(t, s, "impl", "C", 45000)

	slow, err := s.Slowest(context.Background(), 2)
	if err != nil {
		t.Fatalf("Slowest: %v", err)
	}
	if len(slow) != 2 {
		t.Fatalf("got %d rows, want 2", len(slow))
	}
	if slow[0].Kind != "A" || slow[0].DurationMillis != 120000 {
		t.Errorf("slowest[0] = %+v, want A/120000", slow[0])
	}
	if slow[1].Kind != "C" || slow[1].DurationMillis != 45000 {
		t.Errorf("slowest[1] = %+v, want C/45000", slow[1])
	}
	if slow[0].Recipient != "impl" || slow[0].Sender != "planner" {
		t.Errorf("slowest[0] missing routing fields: %+v", slow[0])
	}
}

func TestSlowest_IgnoresUnfinished(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	enqueue(t, s, "impl", "queued", 5)
	fail(t, s, "impl", "failed")
	running := enqueue(t, s, "impl", "running", 5)
	if _, err := s.MarkStarted(ctx, running, "impl"); err != nil {
		t.Fatal(err)
	}

	slow, err := s.Slowest(ctx, 0)
	if err != nil {
		t.Fatalf("Slowest: %v", err)
	}
	if len(slow) != 0 {
		t.Errorf("expected no completed tasks, got %+v", slow)
	}
}

func TestPercentiles(t *testing.T) {
	s := setupStore(t)
	newTestClock(s)
	ctx := context.Background()

	empty, err := s.Percentiles(ctx)
	if err != nil {
		t.Fatalf("Percentiles: %v", err)
	}
	if empty.Count != 0 || empty.P50 != 0 {
		t.Errorf("empty store percentiles = %+v", empty)
	}

	// Insert out of order so the index does the sorting.
	for i := 100; i >= 1; i -= 2 {
		complete(t, s, "impl", "k", int64(i))
	}
	for i := 1; i <= 100; i += 2 {
		complete(t, s, "review", "k", int64(i))
	}

	p, err := s.Percentiles(ctx)
	if err != nil {
		t.Fatalf("Percentiles: %v", err)
	}
	if p.Count != 100 || p.P50 != 50 || p.P95 != 95 || p.P99 != 99 {
		t.Errorf("Percentiles = %+v, want count=100 50/95/99", p)
	}

	window, err := s.WindowPercentiles(ctx, "", time.Time{})
	if err != nil {
		t.Fatalf("WindowPercentiles: %v", err)
	}
	if window != p {
		t.Errorf("WindowPercentiles = %+v, want %+v", window, p)
	}
}

func TestPercentileRanks(t *testing.T) {
	tests := []struct {
		n    int
		want [3]int
	}{
		{1, [3]int{0, 0, 0}},
		{2, [3]int{0, 1, 1}},
		{10, [3]int{4, 9, 9}},
		{20, [3]int{9, 18, 19}},
		{100, [3]int{49, 94, 98}},
	}
	for _, tt := range tests {
		if got := percentileRanks(tt.n); got != tt.want {
			t.Errorf("percentileRanks(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestWindowPercentiles_PerAgentAndWindow(t *testing.T) {
	s := setupStore(t)
	clock := newTestClock(s)
	ctx := context.Background()

	complete(t, s, "impl", "old", 90000)
	clock.Advance(2 * time.Hour)
	windowStart := clock.Now()
	complete(t, s, "impl", "new", 1000)
	complete(t, s, "impl", "new", 3000)
	complete(t, s, "review", "new", 50000)

	p, err := s.WindowPercentiles(ctx, "impl", windowStart)
	if err != nil {
		t.Fatalf("WindowPercentiles: %v", err)
	}
	if p.Count != 2 || p.P50 != 1000 || p.P95 != 3000 {
		t.Errorf("impl window = %+v, want count=2 p50=1000 p95=3000", p)
	}
}

func TestAgentStats(t *testing.T) {
	s := setupStore(t)
	newTestClock(s)
	ctx := context.Background()

	for _, d := range []int64{40, 10, 30, 20} {
		complete(t, s, "impl", "k", d)
	}
	fail(t, s, "impl", "k")
	complete(t, s, "review", "k", 7)

	stats, err := s.AgentStats(ctx, time.Time{})
	if err != nil {
		t.Fatalf("AgentStats: %v", err)
	}
	if len(stats) != 2 || stats[0].AgentID != "impl" || stats[1].AgentID != "review" {
		t.Fatalf("unexpected agents: %+v", stats)
	}

	impl := stats[0]
	if impl.Completed != 4 || impl.Failed != 1 || impl.TotalFinished != 5 {
		t.Errorf("counts = %+v", impl)
	}
	if impl.AvgMillis != 25 || impl.MedianMillis != 25 || impl.MaxMillis != 40 {
		t.Errorf("durations = avg %v median %d max %d, want 25/25/40", impl.AvgMillis, impl.MedianMillis, impl.MaxMillis)
	}
	if math.Abs(impl.FailureRate-0.2) > 1e-9 {
		t.Errorf("failure rate = %v, want 0.2", impl.FailureRate)
	}

	review, err := s.AgentStat(ctx, "review", time.Time{})
	if err != nil {
		t.Fatalf("AgentStat: %v", err)
	}
	if review.Completed != 1 || review.MedianMillis != 7 || review.FailureRate != 0 {
		t.Errorf("review stats = %+v", review)
	}

	none, err := s.AgentStat(ctx, "idle", time.Time{})
	if err != nil {
		t.Fatalf("AgentStat: %v", err)
	}
	if none != (models.AgentStats{AgentID: "idle"}) {
		t.Errorf("idle agent stats = %+v, want zero", none)
	}
}

func TestQueueDepth(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, p := range []int{1, 3, 4, 7, 8, 10} {
		enqueue(t, s, "impl", "k", p)
	}
	enqueue(t, s, "review", "k", 5)
	// A running task is not queued.
	running := enqueue(t, s, "review", "k", 1)
	if _, err := s.MarkStarted(ctx, running, "review"); err != nil {
		t.Fatal(err)
	}

	depths, err := s.QueueDepth(ctx)
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	want := []models.QueueDepth{
		{AgentID: "impl", High: 2, Normal: 2, Low: 2, Total: 6},
		{AgentID: "review", High: 0, Normal: 1, Low: 0, Total: 1},
	}
	if len(depths) != len(want) {
		t.Fatalf("QueueDepth = %+v, want %+v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Errorf("depth[%d] = %+v, want %+v", i, depths[i], want[i])
		}
	}

	one, err := s.QueueDepthFor(ctx, "impl")
	if err != nil {
		t.Fatalf("QueueDepthFor: %v", err)
	}
	if one != want[0] {
		t.Errorf("QueueDepthFor(impl) = %+v, want %+v", one, want[0])
	}
}
