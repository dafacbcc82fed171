// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package samples

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
)

// Recorder persists samples. *DuckDBStore implements it.
type Recorder interface {
	Record(ctx context.Context, samples []models.MetricSample) error
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// StatsSource supplies task aggregates. *queue.Store implements it.
type StatsSource interface {
	AgentStats(ctx context.Context, since time.Time) ([]models.AgentStats, error)
	QueueDepth(ctx context.Context) ([]models.QueueDepth, error)
}

// WorkerSource supplies worker snapshots. *worker.Registry implements it.
type WorkerSource interface {
	Snapshot(agentID string) ([]models.WorkerInfo, error)
}

// Sampler records one set of per-agent samples per call to Sample.
// Task counters cover the interval since the previous call, or since
// construction for the first call.
type Sampler struct {
	recorder  Recorder
	stats     StatsSource
	workers   WorkerSource
	retention time.Duration
	now       func() time.Time

	last      time.Time
	lastPrune time.Time
}

// pruneEvery spaces out retention deletes.
const pruneEvery = time.Hour

// NewSampler creates a sampler. Samples older than retention are deleted
// at most once an hour; zero retention keeps everything.
func NewSampler(recorder Recorder, stats StatsSource, workers WorkerSource, retention time.Duration) *Sampler {
	return &Sampler{
		recorder:  recorder,
		stats:     stats,
		workers:   workers,
		retention: retention,
		now:       time.Now,
		last:      time.Now().UTC(),
	}
}

// Sample records the current observations and returns how many rows were written.
func (s *Sampler) Sample(ctx context.Context) (int, error) {
	now := s.now().UTC()
	since := s.last

	stats, err := s.stats.AgentStats(ctx, since)
	if err != nil {
		metrics.RecordSampleError("stats")
		return 0, fmt.Errorf("agent stats: %w", err)
	}
	depths, err := s.stats.QueueDepth(ctx)
	if err != nil {
		metrics.RecordSampleError("queue_depth")
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	workers, err := s.workers.Snapshot("")
	if err != nil {
		metrics.RecordSampleError("workers")
		return 0, fmt.Errorf("worker snapshot: %w", err)
	}

	rows := buildSamples(now, stats, depths, workers)
	if err := s.recorder.Record(ctx, rows); err != nil {
		metrics.RecordSampleError("record")
		return 0, err
	}
	s.last = now
	metrics.RecordSamples(len(rows))

	if s.retention > 0 && now.Sub(s.lastPrune) >= pruneEvery {
		if _, err := s.recorder.Delete(ctx, now.Add(-s.retention)); err != nil {
			metrics.RecordSampleError("delete")
			return len(rows), fmt.Errorf("prune samples: %w", err)
		}
		s.lastPrune = now
	}
	return len(rows), nil
}

// buildSamples emits rows per agent in agent id order. Workers contribute
// usage; agents that only appear in task data still get task rows.
func buildSamples(at time.Time, stats []models.AgentStats, depths []models.QueueDepth, workers []models.WorkerInfo) []models.MetricSample {
	type agentRow struct {
		stats  *models.AgentStats
		depth  int
		worker *models.WorkerInfo
	}
	byAgent := map[string]*agentRow{}
	row := func(id string) *agentRow {
		r, ok := byAgent[id]
		if !ok {
			r = &agentRow{}
			byAgent[id] = r
		}
		return r
	}
	for i := range stats {
		row(stats[i].AgentID).stats = &stats[i]
	}
	for _, d := range depths {
		row(d.AgentID).depth = d.Total
	}
	for i := range workers {
		row(workers[i].AgentID).worker = &workers[i]
	}

	ids := make([]string, 0, len(byAgent))
	for id := range byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.MetricSample
	add := func(agent, metric string, v float64) {
		out = append(out, models.MetricSample{AgentID: agent, Metric: metric, Value: v, RecordedAt: at})
	}
	for _, id := range ids {
		r := byAgent[id]
		var completed, failed int
		var avg float64
		if r.stats != nil {
			completed, failed, avg = r.stats.Completed, r.stats.Failed, r.stats.AvgMillis
		}
		add(id, models.MetricTasksCompleted, float64(completed))
		add(id, models.MetricTasksFailed, float64(failed))
		if completed > 0 {
			add(id, models.MetricAvgDurationMS, avg)
		}
		add(id, models.MetricQueueDepth, float64(r.depth))
		if r.worker != nil && r.worker.PID != 0 {
			add(id, models.MetricCPUPercent, r.worker.Usage.CPUPercent)
			add(id, models.MetricMemoryMB, r.worker.Usage.MemoryMB)
		}
	}
	return out
}
