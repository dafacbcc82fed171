// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
)

// Registration is the runtime record of one supervised agent.
type Registration struct {
	proc Runner

	mu            sync.Mutex
	status        models.WorkerStatus
	restartCount  int
	startedAt     time.Time
	lastHeartbeat time.Time
	lastError     string
	usage         models.ResourceUsage
}

// AgentID returns the agent id.
func (r *Registration) AgentID() string {
	return r.proc.AgentID()
}

// Process returns the wrapped process.
func (r *Registration) Process() Runner {
	return r.proc
}

// Status returns the current health state.
func (r *Registration) Status() models.WorkerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetStatus records a state change.
func (r *Registration) SetStatus(s models.WorkerStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
	metrics.SetWorkerStatus(r.AgentID(), s)
}

// RestartCount returns how many crash-triggered respawns were attempted.
func (r *Registration) RestartCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restartCount
}

// IncrementRestarts bumps the restart counter and returns the new value.
func (r *Registration) IncrementRestarts() int {
	r.mu.Lock()
	r.restartCount++
	n := r.restartCount
	r.mu.Unlock()
	metrics.RecordWorkerRestart(r.AgentID())
	return n
}

// MarkHeartbeat records a successful liveness check.
func (r *Registration) MarkHeartbeat(at time.Time) {
	r.mu.Lock()
	r.lastHeartbeat = at
	r.mu.Unlock()
}

// SetLastError records the most recent failure for status output.
func (r *Registration) SetLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.lastError = ""
		return
	}
	r.lastError = err.Error()
}

// SetUsage records the last resource sample.
func (r *Registration) SetUsage(u models.ResourceUsage) {
	r.mu.Lock()
	r.usage = u
	r.mu.Unlock()
	metrics.UpdateWorkerUsage(r.AgentID(), u)
}

// Start spawns the process unless one is already alive for this agent.
// The registration moves to Starting on success.
func (r *Registration) Start() error {
	if r.proc.IsAlive() {
		return fmt.Errorf("%w: %s", models.ErrAlreadyRunning, r.AgentID())
	}
	if err := r.proc.Start(); err != nil {
		r.SetLastError(err)
		return err
	}

	r.mu.Lock()
	r.status = models.WorkerStarting
	r.startedAt = time.Now()
	r.mu.Unlock()
	metrics.SetWorkerStatus(r.AgentID(), models.WorkerStarting)
	return nil
}

// Info returns a read-only snapshot.
func (r *Registration) Info() models.WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := models.WorkerInfo{
		AgentID:      r.proc.AgentID(),
		Status:       r.status,
		RestartCount: r.restartCount,
		Usage:        r.usage,
		InboxDepth:   r.proc.InboxDepth(),
		LastError:    r.lastError,
	}
	if r.proc.IsAlive() {
		info.PID = r.proc.PID()
		if started := r.proc.StartedAt(); !started.IsZero() {
			info.UptimeSeconds = time.Since(started).Seconds()
		}
	}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		info.StartedAt = &started
	}
	if !r.lastHeartbeat.IsZero() {
		hb := r.lastHeartbeat
		info.LastHeartbeatAt = &hb
	}
	return info
}

// Registry owns one Registration per agent id.
type Registry struct {
	mu    sync.RWMutex
	regs  map[string]*Registration
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{regs: make(map[string]*Registration)}
}

// Register adds a process slot. A second registration for the same agent id is rejected.
func (g *Registry) Register(p Runner) (*Registration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := p.AgentID()
	if _, exists := g.regs[id]; exists {
		return nil, fmt.Errorf("%w: %s is already registered", models.ErrAlreadyRunning, id)
	}
	reg := &Registration{proc: p, status: models.WorkerStarting}
	g.regs[id] = reg
	g.order = append(g.order, id)
	return reg, nil
}

// Get returns the registration for id.
func (g *Registry) Get(id string) (*Registration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	reg, ok := g.regs[id]
	return reg, ok
}

// List returns registrations in registration order.
func (g *Registry) List() []*Registration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Registration, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.regs[id])
	}
	return out
}

// Snapshot returns WorkerInfo for every registration, or only agentID when set.
func (g *Registry) Snapshot(agentID string) ([]models.WorkerInfo, error) {
	if agentID != "" {
		reg, ok := g.Get(agentID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownAgent, agentID)
		}
		return []models.WorkerInfo{reg.Info()}, nil
	}
	regs := g.List()
	out := make([]models.WorkerInfo, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg.Info())
	}
	return out, nil
}

// StopAll stops every live process in parallel, each bounded by timeout.
func (g *Registry) StopAll(timeout time.Duration) error {
	regs := g.List()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, reg := range regs {
		wg.Add(1)
		go func(reg *Registration) {
			defer wg.Done()
			if err := reg.proc.Stop(timeout); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(reg)
	}
	wg.Wait()

	logging.Info().
		Int("workers", len(regs)).
		Dur("timeout", timeout).
		Int("errors", len(errs)).
		Msg("All workers stopped")
	return errors.Join(errs...)
}
