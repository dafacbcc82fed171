// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

// Package health runs liveness checks over supervised workers and applies
// the bounded respawn policy.
//
// Per registration the states are:
//
//	Starting --alive--> Alive --missed check--> Crashed --respawn ok--> Alive
//	                                               |
//	                                               +--ceiling hit--> RetiredFailed
//
// A missed check on a Starting worker also moves it to Crashed. A retired
// worker is never respawned again; the other workers are unaffected.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/worker"
)

// Config holds the monitor policy.
type Config struct {
	// Interval between check passes. The coordination loop schedules passes.
	Interval time.Duration

	// Timeout bounds one resource sample.
	Timeout time.Duration

	// MaxRetries is the number of crash-triggered respawns before retirement.
	MaxRetries int

	// MaxMemoryMB and MaxCPUPercent are resource limits; 0 disables each.
	MaxMemoryMB   float64
	MaxCPUPercent float64

	// StopTimeout is the graceful window when a worker over its limits is stopped.
	StopTimeout time.Duration
}

// ConfigFrom builds monitor policy from the daemon config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Interval:      cfg.Health.Interval,
		Timeout:       cfg.Health.Timeout,
		MaxRetries:    cfg.Health.MaxRetries,
		MaxMemoryMB:   cfg.Health.MaxMemoryMB,
		MaxCPUPercent: cfg.Health.MaxCPUPercent,
		StopTimeout:   cfg.Supervisor.StopTimeout,
	}
}

// Alerter receives user-visible alerts. *alerting.Emitter implements it.
type Alerter interface {
	Emit(ctx context.Context, alert models.Alert) bool
}

// CrashHandler is called once per detected crash, before any respawn.
// The supervisor uses it to fail the tasks the dead worker held.
type CrashHandler func(ctx context.Context, agentID string)

// PassResult lists the agents whose state a check pass changed.
type PassResult struct {
	Alive     []string
	Crashed   []string
	Restarted []string
	Retired   []string
}

// Monitor checks every registration in a worker.Registry.
type Monitor struct {
	registry *worker.Registry
	config   Config
	alerts   Alerter
	onCrash  CrashHandler
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAlerter sets where retirement and resource-limit alerts go.
func WithAlerter(a Alerter) Option {
	return func(m *Monitor) { m.alerts = a }
}

// WithCrashHandler sets the hook run when a crash is detected.
func WithCrashHandler(h CrashHandler) Option {
	return func(m *Monitor) { m.onCrash = h }
}

// NewMonitor creates a monitor over registry.
func NewMonitor(registry *worker.Registry, cfg Config, opts ...Option) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	m := &Monitor{
		registry: registry,
		config:   cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Interval returns the configured time between passes.
func (m *Monitor) Interval() time.Duration {
	return m.config.Interval
}

// StartAll spawns every registered worker. A worker whose first spawn fails
// goes through the same bounded respawn policy immediately. It returns a
// *models.RetryCeilingExceededError for each worker that could not be started
// at all.
func (m *Monitor) StartAll(ctx context.Context) error {
	var errs []error
	for _, reg := range m.registry.List() {
		err := reg.Start()
		if err == nil {
			continue
		}
		logging.Error().Err(err).Str("agent_id", reg.AgentID()).Msg("Worker failed to start")
		reg.SetStatus(models.WorkerCrashed)

		for reg.Status() == models.WorkerCrashed {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.recover(ctx, reg, nil)
		}
		if reg.Status() == models.WorkerRetiredFailed {
			errs = append(errs, &models.RetryCeilingExceededError{AgentID: reg.AgentID(), Restarts: reg.RestartCount()})
		}
	}
	return errors.Join(errs...)
}

// CheckAll runs one check pass over every registration.
func (m *Monitor) CheckAll(ctx context.Context) PassResult {
	var result PassResult
	for _, reg := range m.registry.List() {
		if ctx.Err() != nil {
			break
		}
		m.check(ctx, reg, &result)
	}
	return result
}

// Check runs one check for a single agent.
func (m *Monitor) Check(ctx context.Context, agentID string) (PassResult, error) {
	var result PassResult
	reg, ok := m.registry.Get(agentID)
	if !ok {
		return result, fmt.Errorf("%w: %s", models.ErrUnknownAgent, agentID)
	}
	m.check(ctx, reg, &result)
	return result, nil
}

func (m *Monitor) check(ctx context.Context, reg *worker.Registration, result *PassResult) {
	status := reg.Status()
	if status == models.WorkerRetiredFailed {
		return
	}

	proc := reg.Process()
	if proc.IsAlive() {
		reg.MarkHeartbeat(m.now())
		if status != models.WorkerAlive {
			reg.SetStatus(models.WorkerAlive)
			reg.SetLastError(nil)
			result.Alive = append(result.Alive, reg.AgentID())
			logging.Info().
				Str("agent_id", reg.AgentID()).
				Int("pid", proc.PID()).
				Int("restart_count", reg.RestartCount()).
				Msg("Worker alive")
		}
		if !m.checkResources(ctx, reg) {
			return
		}
		// Over its limits: the worker was stopped and is handled as a crash.
	}

	if status != models.WorkerCrashed {
		metrics.RecordWorkerCrash(reg.AgentID())
		reg.SetStatus(models.WorkerCrashed)
		result.Crashed = append(result.Crashed, reg.AgentID())
		logging.Error().
			Str("agent_id", reg.AgentID()).
			Str("previous_status", string(status)).
			Int("restart_count", reg.RestartCount()).
			Msg("Worker crashed")
		if m.onCrash != nil {
			m.onCrash(ctx, reg.AgentID())
		}
	}

	m.recover(ctx, reg, result)
}

// recover applies the respawn policy to a Crashed registration.
func (m *Monitor) recover(ctx context.Context, reg *worker.Registration, result *PassResult) {
	if reg.RestartCount() >= m.config.MaxRetries {
		m.retire(ctx, reg, result)
		return
	}

	n := reg.IncrementRestarts()
	if err := reg.Start(); err != nil {
		logging.Error().
			Err(err).
			Str("agent_id", reg.AgentID()).
			Int("restart_count", n).
			Msg("Worker respawn failed")
		reg.SetStatus(models.WorkerCrashed)
		return
	}

	if result != nil {
		result.Restarted = append(result.Restarted, reg.AgentID())
	}
	if reg.Process().IsAlive() {
		reg.SetStatus(models.WorkerAlive)
		reg.SetLastError(nil)
		reg.MarkHeartbeat(m.now())
	}
	logging.Warn().
		Str("agent_id", reg.AgentID()).
		Int("restart_count", n).
		Int("max_retries", m.config.MaxRetries).
		Int("pid", reg.Process().PID()).
		Msg("Worker respawned")
}

func (m *Monitor) retire(ctx context.Context, reg *worker.Registration, result *PassResult) {
	reg.SetStatus(models.WorkerRetiredFailed)
	err := &models.RetryCeilingExceededError{AgentID: reg.AgentID(), Restarts: reg.RestartCount()}
	reg.SetLastError(err)
	if result != nil {
		result.Retired = append(result.Retired, reg.AgentID())
	}

	logging.Error().
		Err(err).
		Str("agent_id", reg.AgentID()).
		Int("restart_count", reg.RestartCount()).
		Msg("Worker retired after exhausting respawns")

	if m.alerts != nil {
		m.alerts.Emit(ctx, models.Alert{
			Kind:      models.AlertWorkerRetired,
			Severity:  models.SeverityFatal,
			AgentID:   reg.AgentID(),
			Message:   err.Error(),
			Value:     float64(reg.RestartCount()),
			Threshold: float64(m.config.MaxRetries),
		})
	}
}

// checkResources samples usage and enforces limits. It returns true when
// the worker was stopped for exceeding a limit.
func (m *Monitor) checkResources(ctx context.Context, reg *worker.Registration) bool {
	usage, err := m.sample(ctx, reg.Process())
	if err != nil {
		logging.Debug().Err(err).Str("agent_id", reg.AgentID()).Msg("Resource sample skipped")
		return false
	}
	reg.SetUsage(usage)

	var kind string
	var value, limit float64
	switch {
	case m.config.MaxMemoryMB > 0 && usage.MemoryMB > m.config.MaxMemoryMB:
		kind, value, limit = "memory_mb", usage.MemoryMB, m.config.MaxMemoryMB
	case m.config.MaxCPUPercent > 0 && usage.CPUPercent > m.config.MaxCPUPercent:
		kind, value, limit = "cpu_percent", usage.CPUPercent, m.config.MaxCPUPercent
	default:
		return false
	}

	msg := fmt.Sprintf("agent %s %s %.1f exceeds limit %.1f; stopping worker", reg.AgentID(), kind, value, limit)
	logging.Warn().
		Str("agent_id", reg.AgentID()).
		Str("resource", kind).
		Float64("value", value).
		Float64("limit", limit).
		Msg("Worker over resource limit")
	if m.alerts != nil {
		m.alerts.Emit(ctx, models.Alert{
			Kind:      models.AlertResourceLimit,
			Severity:  models.SeverityCritical,
			AgentID:   reg.AgentID(),
			Message:   msg,
			Value:     value,
			Threshold: limit,
		})
	}
	if err := reg.Process().Stop(m.config.StopTimeout); err != nil {
		logging.Error().Err(err).Str("agent_id", reg.AgentID()).Msg("Stopping worker over limit failed")
	}
	reg.SetLastError(errors.New(msg))
	return true
}

// sample reads resource usage without letting a slow probe stall the pass.
func (m *Monitor) sample(ctx context.Context, proc worker.Runner) (models.ResourceUsage, error) {
	type reading struct {
		usage models.ResourceUsage
		err   error
	}
	ch := make(chan reading, 1)
	go func() {
		u, err := proc.ResourceUsage()
		ch <- reading{u, err}
	}()

	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.usage, r.err
	case <-timer.C:
		return models.ResourceUsage{}, fmt.Errorf("resource sample timed out after %v", m.config.Timeout)
	case <-ctx.Done():
		return models.ResourceUsage{}, ctx.Err()
	}
}
