// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package api

import (
	"context"
	"time"

	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/samples"
)

// TaskStore is the part of *queue.Store the API serves.
type TaskStore interface {
	Enqueue(ctx context.Context, req *models.EnqueueRequest) (string, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	MarkStarted(ctx context.Context, id, owner string) (*models.Task, error)
	MarkCompleted(ctx context.Context, id string, durationMillis int64) (*models.Task, error)
	MarkFailed(ctx context.Context, id, errorMessage string) (*models.Task, error)
	Cleanup(ctx context.Context, olderThanDays int) (int, error)
	Slowest(ctx context.Context, limit int) ([]models.SlowTask, error)
	Percentiles(ctx context.Context) (models.Percentiles, error)
	QueueDepth(ctx context.Context) ([]models.QueueDepth, error)
	QueueDepthFor(ctx context.Context, agentID string) (models.QueueDepth, error)
	AgentStat(ctx context.Context, agentID string, since time.Time) (models.AgentStats, error)
}

// WorkerSource reports worker state. *worker.Registry implements it.
type WorkerSource interface {
	Snapshot(agentID string) ([]models.WorkerInfo, error)
}

// AlertSource exposes emitted alerts. *alerting.Emitter implements it.
type AlertSource interface {
	Recent(limit int) []models.Alert
	Subscribe(ctx context.Context) (<-chan models.Alert, error)
}

// SampleSource queries recorded metric samples. *samples.DuckDBStore implements it.
type SampleSource interface {
	Query(ctx context.Context, f samples.QueryFilter) ([]models.MetricSample, error)
}

// ShutdownFunc asks the supervisor to stop. It must not block.
type ShutdownFunc func(force bool)

const (
	defaultBottleneckLimit = 10
	maxBottleneckLimit     = 100
	defaultAlertLimit      = 50
	defaultSampleWindow    = 24 * time.Hour
	maxSampleRows          = 500
)

// Handler serves the control API.
type Handler struct {
	store         TaskStore
	workers       WorkerSource
	alerts        AlertSource
	samples       SampleSource
	shutdown      ShutdownFunc
	retentionDays int
	startTime     time.Time
	now           func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSamples enables metric samples on the agent metrics endpoint.
func WithSamples(s SampleSource) HandlerOption {
	return func(h *Handler) { h.samples = s }
}

// WithShutdown installs the hook behind POST /api/v1/shutdown.
func WithShutdown(fn ShutdownFunc) HandlerOption {
	return func(h *Handler) { h.shutdown = fn }
}

// WithRetentionDays sets the retention used when a cleanup request omits it.
func WithRetentionDays(days int) HandlerOption {
	return func(h *Handler) { h.retentionDays = days }
}

// WithStartTime sets the supervisor start time reported by status.
func WithStartTime(t time.Time) HandlerOption {
	return func(h *Handler) { h.startTime = t }
}

// NewHandler creates a Handler.
func NewHandler(store TaskStore, workers WorkerSource, alerts AlertSource, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		workers:   workers,
		alerts:    alerts,
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
