// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
)

// manualClock is a settable time source for limiter tests.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupEmitter(t *testing.T, cfg EmitterConfig) (*Emitter, *manualClock) {
	t.Helper()
	e := NewEmitter(cfg, nil)
	clock := &manualClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	e.now = clock.Now
	t.Cleanup(func() { _ = e.Close() })
	return e, clock
}

func queueAlert(agent string) models.Alert {
	return models.Alert{
		Kind:     models.AlertQueueDepth,
		Severity: models.SeverityCritical,
		AgentID:  agent,
		Message:  "agent " + agent + " has 80 queued tasks",
	}
}

func TestEmit_FillsIdentity(t *testing.T) {
	e, clock := setupEmitter(t, DefaultEmitterConfig())

	if !e.Emit(context.Background(), queueAlert("impl")) {
		t.Fatal("first alert should be emitted")
	}

	recent := e.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("Recent(1) returned %d alerts", len(recent))
	}
	if recent[0].ID == "" {
		t.Error("expected generated alert ID")
	}
	if !recent[0].CreatedAt.Equal(clock.Now()) {
		t.Errorf("CreatedAt = %v, want %v", recent[0].CreatedAt, clock.Now())
	}
}

func TestEmit_RepeatLimiter(t *testing.T) {
	e, clock := setupEmitter(t, EmitterConfig{RepeatInterval: 5 * time.Minute})
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues(string(models.AlertQueueDepth)))

	if !e.Emit(ctx, queueAlert("impl")) {
		t.Fatal("first alert should be emitted")
	}
	if e.Emit(ctx, queueAlert("impl")) {
		t.Error("immediate repeat should be suppressed")
	}
	if !e.Emit(ctx, queueAlert("review")) {
		t.Error("same kind for another agent is a different key")
	}

	clock.Advance(time.Minute)
	if e.Emit(ctx, queueAlert("impl")) {
		t.Error("repeat within the interval should be suppressed")
	}

	clock.Advance(5 * time.Minute)
	if !e.Emit(ctx, queueAlert("impl")) {
		t.Error("repeat after the interval should be emitted")
	}

	after := testutil.ToFloat64(metrics.AlertsSuppressed.WithLabelValues(string(models.AlertQueueDepth)))
	if after-before != 2 {
		t.Errorf("suppressed counter grew by %v, want 2", after-before)
	}
	if got := len(e.Recent(0)); got != 3 {
		t.Errorf("Recent(0) = %d alerts, want 3", got)
	}
}

func TestEmit_FatalNeverLimited(t *testing.T) {
	e, _ := setupEmitter(t, EmitterConfig{RepeatInterval: time.Hour})
	ctx := context.Background()

	retired := models.Alert{
		Kind:     models.AlertWorkerRetired,
		Severity: models.SeverityFatal,
		AgentID:  "impl",
		Message:  "worker impl retired",
	}
	for i := 0; i < 3; i++ {
		if !e.Emit(ctx, retired) {
			t.Fatalf("fatal alert %d was suppressed", i)
		}
	}
}

func TestEmit_CountsBySeverity(t *testing.T) {
	e, _ := setupEmitter(t, DefaultEmitterConfig())

	counter := metrics.AlertsEmitted.WithLabelValues(string(models.AlertSlowTask), string(models.SeverityWarning))
	before := testutil.ToFloat64(counter)

	e.Emit(context.Background(), models.Alert{
		Kind:     models.AlertSlowTask,
		Severity: models.SeverityWarning,
		AgentID:  "impl",
		TaskID:   "t-1",
		Message:  "task t-1 took 90000ms",
	})

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("emitted counter grew by %v, want 1", got)
	}
}

func TestRecent_RingOrder(t *testing.T) {
	e, _ := setupEmitter(t, EmitterConfig{RingSize: 3})
	ctx := context.Background()

	for _, agent := range []string{"a", "b", "c", "d", "e"} {
		e.Emit(ctx, queueAlert(agent))
	}

	recent := e.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Recent(0) = %d alerts, want ring size 3", len(recent))
	}
	want := []string{"e", "d", "c"}
	for i, a := range recent {
		if a.AgentID != want[i] {
			t.Errorf("recent[%d] = %s, want %s", i, a.AgentID, want[i])
		}
	}

	if got := e.Recent(2); len(got) != 2 || got[0].AgentID != "e" {
		t.Errorf("Recent(2) = %+v", got)
	}
}

func TestRecent_Empty(t *testing.T) {
	e, _ := setupEmitter(t, DefaultEmitterConfig())
	if got := e.Recent(10); len(got) != 0 {
		t.Errorf("Recent on empty emitter = %d alerts", len(got))
	}
}

func TestSubscribe_ReceivesAlerts(t *testing.T) {
	e, _ := setupEmitter(t, DefaultEmitterConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := e.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	e.Emit(ctx, queueAlert("impl"))

	select {
	case got := <-ch:
		if got.Kind != models.AlertQueueDepth || got.AgentID != "impl" {
			t.Errorf("received %+v", got)
		}
		if got.ID == "" {
			t.Error("published alert should carry its ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published alert")
	}
}

func TestSubscribe_ClosedByCancel(t *testing.T) {
	e, _ := setupEmitter(t, DefaultEmitterConfig())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := e.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestClose(t *testing.T) {
	e := NewEmitter(DefaultEmitterConfig(), nil)

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if e.Emit(context.Background(), queueAlert("impl")) {
		t.Error("Emit after Close should report false")
	}
	if _, err := e.Subscribe(context.Background()); err != ErrClosed {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}
