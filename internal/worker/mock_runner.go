// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

// MockRunner is a test helper that implements Runner without spawning anything.
// Tests crash it with Crash and count spawn attempts with StartCount.
type MockRunner struct {
	id         string
	startCount atomic.Int32
	stopCount  atomic.Int32

	mu         sync.Mutex
	alive      bool
	startErr   error
	startedAt  time.Time
	usage      models.ResourceUsage
	inboxSize  int
	delivered  []models.Delivery
	stayAlive  bool
	failStarts int
	failErr    error
}

// NewMockRunner creates a mock runner with an inbox of inboxSize.
func NewMockRunner(agentID string, inboxSize int) *MockRunner {
	return &MockRunner{id: agentID, inboxSize: inboxSize}
}

// AgentID implements Runner.
func (m *MockRunner) AgentID() string { return m.id }

// Start implements Runner.
func (m *MockRunner) Start() error {
	m.startCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStarts > 0 {
		m.failStarts--
		return &models.SpawnError{AgentID: m.id, Err: m.failErr}
	}
	if m.startErr != nil {
		return &models.SpawnError{AgentID: m.id, Err: m.startErr}
	}
	m.alive = true
	m.startedAt = time.Now()
	m.delivered = nil
	return nil
}

// IsAlive implements Runner.
func (m *MockRunner) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

// Stop implements Runner.
func (m *MockRunner) Stop(time.Duration) error {
	m.stopCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stayAlive {
		m.alive = false
	}
	return nil
}

// ResourceUsage implements Runner.
func (m *MockRunner) ResourceUsage() (models.ResourceUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive {
		return models.ResourceUsage{}, ErrNotRunning
	}
	return m.usage, nil
}

// Deliver implements Runner.
func (m *MockRunner) Deliver(d models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive {
		return ErrNotRunning
	}
	if len(m.delivered) >= m.inboxSize {
		return ErrInboxFull
	}
	m.delivered = append(m.delivered, d)
	return nil
}

// InboxFree implements Runner.
func (m *MockRunner) InboxFree() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive {
		return 0
	}
	return m.inboxSize - len(m.delivered)
}

// InboxDepth implements Runner.
func (m *MockRunner) InboxDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delivered)
}

// PID implements Runner.
func (m *MockRunner) PID() int {
	if m.IsAlive() {
		return 4242
	}
	return 0
}

// StartedAt implements Runner.
func (m *MockRunner) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

// Crash simulates the process dying out-of-band.
func (m *MockRunner) Crash() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
}

// SetStartError makes every following Start fail with err (nil to clear).
func (m *MockRunner) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetFailStarts makes the next n Start calls fail with err.
func (m *MockRunner) SetFailStarts(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStarts = n
	m.failErr = err
}

// SetUsage sets what ResourceUsage reports.
func (m *MockRunner) SetUsage(u models.ResourceUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
}

// SetIgnoreStop makes Stop leave the runner alive.
func (m *MockRunner) SetIgnoreStop(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stayAlive = v
}

// Delivered returns the tasks delivered since the last Start.
func (m *MockRunner) Delivered() []models.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Delivery, len(m.delivered))
	copy(out, m.delivered)
	return out
}

// StartCount returns how many times Start was called.
func (m *MockRunner) StartCount() int32 {
	return m.startCount.Load()
}

// StopCount returns how many times Stop was called.
func (m *MockRunner) StopCount() int32 {
	return m.stopCount.Load()
}
