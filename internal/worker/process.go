// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
)

// Environment variables set for every worker.
const (
	EnvAgentID      = "FOREMAN_AGENT_ID"
	EnvAPI          = "FOREMAN_API"
	EnvPollInterval = "FOREMAN_POLL_INTERVAL"
)

const (
	// DefaultInboxSize is used when Spec.InboxSize is not positive.
	DefaultInboxSize = 64

	// killWait bounds how long Stop waits for the process to be reaped after SIGKILL.
	killWait = 5 * time.Second

	// outputWaitDelay bounds how long Wait keeps copying output after the
	// process exits, for grandchildren that inherited stdout.
	outputWaitDelay = 2 * time.Second
)

var (
	// ErrInboxFull is returned by Deliver when the inbox is at capacity.
	ErrInboxFull = errors.New("worker inbox full")

	// ErrNotRunning is returned by Deliver when no live process exists.
	ErrNotRunning = errors.New("worker not running")
)

// Spec describes how to launch one agent.
type Spec struct {
	AgentID      string
	Command      string
	Args         []string
	Env          map[string]string
	Dir          string
	PollInterval time.Duration
	APIURL       string
	InboxSize    int
}

// SpecFromConfig builds a Spec from an agent entry of the config file.
func SpecFromConfig(a config.AgentConfig, apiURL string, inboxSize int) Spec {
	return Spec{
		AgentID:      a.ID,
		Command:      a.Command,
		Args:         a.Args,
		Env:          a.Env,
		Dir:          a.Dir,
		PollInterval: a.PollInterval,
		APIURL:       apiURL,
		InboxSize:    inboxSize,
	}
}

// Runner is the lifecycle contract the supervisor relies on. *Process
// implements it; tests substitute fakes.
type Runner interface {
	AgentID() string
	Start() error
	IsAlive() bool
	Stop(timeout time.Duration) error
	ResourceUsage() (models.ResourceUsage, error)
	Deliver(d models.Delivery) error
	InboxFree() int
	InboxDepth() int
	PID() int
	StartedAt() time.Time
}

// run is one spawned generation of a Process.
type run struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	inbox     chan models.Delivery

	// done is closed once the process has been reaped; err is set before.
	done chan struct{}
	err  error

	// quit is closed by Stop to end the stdin pump.
	quit     chan struct{}
	quitOnce sync.Once

	usageMu sync.Mutex
	handle  *process.Process
}

func (r *run) alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *run) stopPump() {
	r.quitOnce.Do(func() { close(r.quit) })
}

// Process supervises one OS process slot for one agent.
type Process struct {
	spec   Spec
	logger zerolog.Logger

	mu  sync.Mutex
	cur *run
}

// NewProcess creates a wrapper; nothing is spawned until Start.
func NewProcess(spec Spec) *Process {
	if spec.InboxSize <= 0 {
		spec.InboxSize = DefaultInboxSize
	}
	return &Process{
		spec:   spec,
		logger: logging.ForAgent(spec.AgentID),
	}
}

// AgentID returns the agent this process slot belongs to.
func (p *Process) AgentID() string {
	return p.spec.AgentID
}

func (p *Process) current() *run {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Start spawns the agent process. It fails with ErrAlreadyRunning while a
// previous process is still alive, and with *models.SpawnError when the
// command cannot be started.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur != nil && p.cur.alive() {
		return fmt.Errorf("%w: %s (pid %d)", models.ErrAlreadyRunning, p.spec.AgentID, p.cur.pid)
	}

	cmd := exec.Command(p.spec.Command, p.spec.Args...) //nolint:gosec // command comes from operator config
	cmd.Dir = p.spec.Dir
	cmd.Env = p.environ()
	cmd.WaitDelay = outputWaitDelay
	configureProcAttr(cmd)

	stdout := logging.NewLineWriter(logging.Logger(), zerolog.InfoLevel, p.spec.AgentID, "stdout")
	stderr := logging.NewLineWriter(logging.Logger(), zerolog.WarnLevel, p.spec.AgentID, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		metrics.RecordSpawnFailure(p.spec.AgentID)
		return &models.SpawnError{AgentID: p.spec.AgentID, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		metrics.RecordSpawnFailure(p.spec.AgentID)
		return &models.SpawnError{AgentID: p.spec.AgentID, Err: err}
	}

	r := &run{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		inbox:     make(chan models.Delivery, p.spec.InboxSize),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	if h, err := process.NewProcess(int32(r.pid)); err == nil { //nolint:gosec // pids fit in int32
		r.handle = h
	}
	p.cur = r

	go p.wait(r, stdout, stderr)
	go p.pump(r, stdin)

	p.logger.Info().
		Int("pid", r.pid).
		Str("command", p.spec.Command).
		Strs("args", p.spec.Args).
		Msg("Worker process started")
	return nil
}

// environ is the parent environment plus the agent's own variables.
func (p *Process) environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(p.spec.Env))
	for k := range p.spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+p.spec.Env[k])
	}
	env = append(env, EnvAgentID+"="+p.spec.AgentID)
	if p.spec.APIURL != "" {
		env = append(env, EnvAPI+"="+p.spec.APIURL)
	}
	if p.spec.PollInterval > 0 {
		env = append(env, EnvPollInterval+"="+p.spec.PollInterval.String())
	}
	return env
}

func (p *Process) wait(r *run, stdout, stderr *logging.LineWriter) {
	err := r.cmd.Wait()
	stdout.Flush()
	stderr.Flush()
	r.err = err
	close(r.done)

	event := p.logger.Info()
	if err != nil {
		event = p.logger.Warn().Err(err)
	}
	event.Int("pid", r.pid).
		Dur("uptime", time.Since(r.startedAt)).
		Msg("Worker process exited")
}

// pump writes inbox deliveries to stdin until the process exits or Stop is called.
func (p *Process) pump(r *run, stdin io.WriteCloser) {
	defer stdin.Close()
	enc := json.NewEncoder(stdin)
	for {
		select {
		case <-r.done:
			return
		case <-r.quit:
			return
		case d := <-r.inbox:
			metrics.UpdateInboxDepth(p.spec.AgentID, len(r.inbox))
			if err := enc.Encode(d); err != nil {
				p.logger.Warn().
					Err(err).
					Str("task_id", d.ID).
					Msg("Write to worker stdin failed")
				continue
			}
			p.logger.Debug().Str("task_id", d.ID).Str("kind", d.Kind).Msg("Task written to worker")
		}
	}
}

// IsAlive reports whether the current process is still running. It never blocks.
func (p *Process) IsAlive() bool {
	r := p.current()
	return r != nil && r.alive()
}

// ExitErr returns the exit error of the last process once it has exited.
func (p *Process) ExitErr() error {
	r := p.current()
	if r == nil || r.alive() {
		return nil
	}
	return r.err
}

// PID returns the pid of the current process, or 0.
func (p *Process) PID() int {
	r := p.current()
	if r == nil {
		return 0
	}
	return r.pid
}

// StartedAt returns when the current process was spawned.
func (p *Process) StartedAt() time.Time {
	r := p.current()
	if r == nil {
		return time.Time{}
	}
	return r.startedAt
}

// Stop asks the process to exit and waits up to timeout before killing it.
// Stopping a process that is not running is a no-op.
func (p *Process) Stop(timeout time.Duration) error {
	r := p.current()
	if r == nil || !r.alive() {
		return nil
	}
	r.stopPump()

	if timeout > 0 {
		if err := terminate(r.cmd); err != nil {
			p.logger.Debug().Err(err).Msg("SIGTERM failed")
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-r.done:
			p.logger.Info().Int("pid", r.pid).Msg("Worker stopped gracefully")
			return nil
		case <-timer.C:
			p.logger.Warn().Int("pid", r.pid).Dur("timeout", timeout).Msg("Worker ignored SIGTERM, killing")
		}
	}

	if err := kill(r.cmd); err != nil {
		p.logger.Debug().Err(err).Msg("SIGKILL failed")
	}
	select {
	case <-r.done:
		p.logger.Info().Int("pid", r.pid).Msg("Worker killed")
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("agent %s: pid %d not reaped %v after SIGKILL", p.spec.AgentID, r.pid, killWait)
	}
}

// ResourceUsage samples CPU percent since the previous sample and resident memory.
func (p *Process) ResourceUsage() (models.ResourceUsage, error) {
	r := p.current()
	if r == nil || !r.alive() {
		return models.ResourceUsage{}, ErrNotRunning
	}

	r.usageMu.Lock()
	defer r.usageMu.Unlock()

	if r.handle == nil {
		h, err := process.NewProcess(int32(r.pid)) //nolint:gosec // pids fit in int32
		if err != nil {
			return models.ResourceUsage{}, fmt.Errorf("inspect pid %d: %w", r.pid, err)
		}
		r.handle = h
	}

	cpu, err := r.handle.Percent(0)
	if err != nil {
		return models.ResourceUsage{}, fmt.Errorf("cpu percent: %w", err)
	}
	mem, err := r.handle.MemoryInfo()
	if err != nil {
		return models.ResourceUsage{}, fmt.Errorf("memory info: %w", err)
	}
	return models.ResourceUsage{
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / (1024 * 1024),
	}, nil
}

// Deliver queues a task for the stdin pump. It never blocks.
func (p *Process) Deliver(d models.Delivery) error {
	r := p.current()
	if r == nil || !r.alive() {
		return ErrNotRunning
	}
	select {
	case r.inbox <- d:
		metrics.UpdateInboxDepth(p.spec.AgentID, len(r.inbox))
		return nil
	default:
		return ErrInboxFull
	}
}

// InboxFree returns how many more deliveries the inbox accepts, 0 if not running.
func (p *Process) InboxFree() int {
	r := p.current()
	if r == nil || !r.alive() {
		return 0
	}
	return cap(r.inbox) - len(r.inbox)
}

// InboxDepth returns how many deliveries are waiting for the pump.
func (p *Process) InboxDepth() int {
	r := p.current()
	if r == nil {
		return 0
	}
	return len(r.inbox)
}
