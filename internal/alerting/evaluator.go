// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/models"
)

// Source is the analytics surface the evaluator reads. *queue.Store
// implements it.
type Source interface {
	CompletedSince(ctx context.Context, since time.Time) ([]*models.Task, error)
	WindowPercentiles(ctx context.Context, agentID string, since time.Time) (models.Percentiles, error)
	AgentStats(ctx context.Context, since time.Time) ([]models.AgentStats, error)
	QueueDepth(ctx context.Context) ([]models.QueueDepth, error)
}

// Thresholds are the alert policies. A zero threshold disables its policy.
type Thresholds struct {
	SlowTaskMS     int64
	P95MS          int64
	P95Window      time.Duration
	MaxQueueDepth  int
	MaxFailureRate float64
	MinSamples     int
}

// ThresholdsFrom copies the alert thresholds out of the daemon config.
func ThresholdsFrom(cfg config.AlertsConfig) Thresholds {
	return Thresholds{
		SlowTaskMS:     cfg.SlowTaskMS,
		P95MS:          cfg.P95MS,
		P95Window:      cfg.P95Window,
		MaxQueueDepth:  cfg.MaxQueueDepth,
		MaxFailureRate: cfg.MaxFailureRate,
		MinSamples:     cfg.MinSamples,
	}
}

// Evaluator turns analytics into alerts.
//
// Slow tasks are checked incrementally: each pass only looks at tasks whose
// EndedAt falls after the previous pass started. The p95 and failure-rate
// policies use the rolling P95Window and need MinSamples finished tasks
// before they fire.
type Evaluator struct {
	source     Source
	thresholds Thresholds
	now        func() time.Time
	lastSlow   time.Time
}

// NewEvaluator creates an evaluator. The first pass considers slow tasks
// that completed within one P95Window.
func NewEvaluator(source Source, thresholds Thresholds) *Evaluator {
	if thresholds.P95Window <= 0 {
		thresholds.P95Window = time.Hour
	}
	if thresholds.MinSamples <= 0 {
		thresholds.MinSamples = 1
	}
	return &Evaluator{
		source:     source,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate runs every policy once and returns the alerts raised. The slow
// task watermark only advances when the pass succeeds.
func (e *Evaluator) Evaluate(ctx context.Context) ([]models.Alert, error) {
	now := e.now()
	windowStart := now.Add(-e.thresholds.P95Window)

	var alerts []models.Alert

	slow, err := e.slowTasks(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("slow tasks: %w", err)
	}
	alerts = append(alerts, slow...)

	stats, err := e.source.AgentStats(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	for _, st := range stats {
		a, err := e.agentWindow(ctx, st, windowStart)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a...)
	}

	depth, err := e.queueDepth(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	alerts = append(alerts, depth...)

	e.lastSlow = now
	return alerts, nil
}

func (e *Evaluator) slowTasks(ctx context.Context, windowStart time.Time) ([]models.Alert, error) {
	if e.thresholds.SlowTaskMS <= 0 {
		return nil, nil
	}
	since := e.lastSlow
	if since.IsZero() {
		since = windowStart
	}
	tasks, err := e.source.CompletedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	var alerts []models.Alert
	for _, t := range tasks {
		if t.DurationMillis == nil || *t.DurationMillis <= e.thresholds.SlowTaskMS {
			continue
		}
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertSlowTask,
			Severity:  models.SeverityWarning,
			AgentID:   t.Recipient,
			TaskID:    t.ID,
			Message:   fmt.Sprintf("task %s (%s) took %dms", t.ID, t.Kind, *t.DurationMillis),
			Value:     float64(*t.DurationMillis),
			Threshold: float64(e.thresholds.SlowTaskMS),
		})
	}
	return alerts, nil
}

func (e *Evaluator) agentWindow(ctx context.Context, st models.AgentStats, windowStart time.Time) ([]models.Alert, error) {
	var alerts []models.Alert

	if e.thresholds.MaxFailureRate > 0 && st.TotalFinished >= e.thresholds.MinSamples &&
		st.FailureRate > e.thresholds.MaxFailureRate {
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertFailureRate,
			Severity:  models.SeverityCritical,
			AgentID:   st.AgentID,
			Message:   fmt.Sprintf("agent %s failed %d of %d tasks", st.AgentID, st.Failed, st.TotalFinished),
			Value:     st.FailureRate,
			Threshold: e.thresholds.MaxFailureRate,
		})
	}

	if e.thresholds.P95MS > 0 && st.Completed >= e.thresholds.MinSamples {
		p, err := e.source.WindowPercentiles(ctx, st.AgentID, windowStart)
		if err != nil {
			return nil, fmt.Errorf("percentiles for %s: %w", st.AgentID, err)
		}
		if p.P95 > e.thresholds.P95MS {
			alerts = append(alerts, models.Alert{
				Kind:      models.AlertP95Exceeded,
				Severity:  models.SeverityWarning,
				AgentID:   st.AgentID,
				Message:   fmt.Sprintf("agent %s p95 is %dms over %s", st.AgentID, p.P95, e.thresholds.P95Window),
				Value:     float64(p.P95),
				Threshold: float64(e.thresholds.P95MS),
			})
		}
	}
	return alerts, nil
}

func (e *Evaluator) queueDepth(ctx context.Context) ([]models.Alert, error) {
	if e.thresholds.MaxQueueDepth <= 0 {
		return nil, nil
	}
	depths, err := e.source.QueueDepth(ctx)
	if err != nil {
		return nil, err
	}
	var alerts []models.Alert
	for _, d := range depths {
		if d.Total <= e.thresholds.MaxQueueDepth {
			continue
		}
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertQueueDepth,
			Severity:  models.SeverityCritical,
			AgentID:   d.AgentID,
			Message:   fmt.Sprintf("agent %s has %d queued tasks", d.AgentID, d.Total),
			Value:     float64(d.Total),
			Threshold: float64(e.thresholds.MaxQueueDepth),
		})
	}
	return alerts, nil
}
