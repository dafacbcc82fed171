// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

// Package coordinator runs the supervisor's fixed-tick control cycle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/health"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/queue"
	"github.com/tomtom215/foreman/internal/worker"
)

// Reasons recorded on orphaned tasks.
const (
	ReasonWorkerCrashed  = "orphaned: worker crashed"
	ReasonRunningTimeout = "orphaned: running timeout exceeded"
	ReasonRestarted      = "orphaned: supervisor restarted"
)

// Phase names used in logs and foreman_loop_phase_errors_total.
const (
	PhaseHealth    = "health"
	PhaseOrphans   = "orphans"
	PhaseDispatch  = "dispatch"
	PhaseAnalytics = "analytics"
	PhaseSamples   = "samples"
)

// breakerName labels the store breaker in metrics.
const breakerName = "task_store"

// Config holds loop timing and escalation policy.
type Config struct {
	TickInterval      time.Duration
	HealthInterval    time.Duration
	AnalyticsInterval time.Duration

	// RunningTimeout fails tasks Running longer than this; 0 disables.
	RunningTimeout time.Duration

	// StoreFailureThreshold is the number of consecutive ticks with a store
	// failure that escalates to a fatal alert and stops the supervisor.
	StoreFailureThreshold uint32

	// Owner is recorded on tasks the loop dequeues.
	Owner string
}

// ConfigFrom builds loop policy from the daemon config.
func ConfigFrom(cfg *config.Config) Config {
	threshold := cfg.Supervisor.StoreFailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	return Config{
		TickInterval:          cfg.Supervisor.TickInterval,
		HealthInterval:        cfg.Health.Interval,
		AnalyticsInterval:     cfg.Supervisor.AnalyticsInterval,
		RunningTimeout:        cfg.Queue.RunningTimeout,
		StoreFailureThreshold: uint32(threshold),
		Owner:                 "foreman",
	}
}

// TaskStore is the part of the task store the loop mutates. *queue.Store
// implements it.
type TaskStore interface {
	Dequeue(ctx context.Context, agentID, owner string) (*models.Task, error)
	RecoverOrphans(ctx context.Context, agentID string, minAge time.Duration, reason string) (queue.OrphanReport, error)
}

// HealthChecker runs one health pass. *health.Monitor implements it.
type HealthChecker interface {
	CheckAll(ctx context.Context) health.PassResult
}

// Evaluator produces alerts from analytics. *alerting.Evaluator implements it.
type Evaluator interface {
	Evaluate(ctx context.Context) ([]models.Alert, error)
}

// Sampler records metric samples. *samples.Sampler implements it.
type Sampler interface {
	Sample(ctx context.Context) (int, error)
}

// Loop is the coordination loop. Each tick runs, in order: a health pass
// when one is due (plus the running-timeout sweep), a dispatch drain for
// every Alive worker, and the analytics pass when one is due.
//
// Failures inside a tick are logged and counted, never returned, with one
// exception: when the task store has failed on StoreFailureThreshold
// consecutive ticks the loop raises a fatal alert and Serve returns
// suture.ErrTerminateSupervisorTree.
type Loop struct {
	config    Config
	store     TaskStore
	registry  *worker.Registry
	monitor   HealthChecker
	evaluator Evaluator
	sampler   Sampler
	alerts    health.Alerter
	breaker   *gobreaker.CircuitBreaker[interface{}]
	now       func() time.Time

	tick          uint64
	lastHealth    time.Time
	lastAnalytics time.Time

	// crashErrs collects store errors from the crash hook during a health pass.
	crashMu   sync.Mutex
	crashErrs []error

	escalated atomic.Bool
	fatalErr  atomic.Value
}

// Option configures a Loop.
type Option func(*Loop)

// WithEvaluator enables alert evaluation on the analytics pass.
func WithEvaluator(e Evaluator) Option {
	return func(l *Loop) { l.evaluator = e }
}

// WithSampler enables metric samples on the analytics pass.
func WithSampler(s Sampler) Option {
	return func(l *Loop) { l.sampler = s }
}

// WithAlerter sets where evaluated and escalation alerts go.
func WithAlerter(a health.Alerter) Option {
	return func(l *Loop) { l.alerts = a }
}

// NewLoop creates a coordination loop.
func NewLoop(cfg Config, store TaskStore, registry *worker.Registry, monitor HealthChecker, opts ...Option) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.StoreFailureThreshold == 0 {
		cfg.StoreFailureThreshold = 5
	}
	if cfg.Owner == "" {
		cfg.Owner = "foreman"
	}

	l := &Loop{
		config:   cfg,
		store:    store,
		registry: registry,
		monitor:  monitor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.breaker = l.newBreaker()
	return l
}

func (l *Loop) newBreaker() *gobreaker.CircuitBreaker[interface{}] {
	threshold := l.config.StoreFailureThreshold
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		// Interval 0 never clears counts while closed; one healthy tick does.
		Interval: 0,
		// Open is terminal: the tree is torn down on escalation.
		Timeout: time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !isStoreFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String(), breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Task store breaker changed state")
			if to == gobreaker.StateOpen {
				l.escalated.Store(true)
			}
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// isStoreFailure reports whether err counts toward escalation.
func isStoreFailure(err error) bool {
	return errors.Is(err, models.ErrStoreUnavailable) || errors.Is(err, models.ErrStoreClosed)
}

// HandleCrash fails and, within the attempt limit, retries every task the
// crashed agent held. It is installed as the health monitor's crash hook.
func (l *Loop) HandleCrash(ctx context.Context, agentID string) {
	report, err := l.store.RecoverOrphans(ctx, agentID, 0, ReasonWorkerCrashed)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("agent_id", agentID).Msg("Failed to recover tasks of crashed worker")
		l.crashMu.Lock()
		l.crashErrs = append(l.crashErrs, err)
		l.crashMu.Unlock()
		return
	}
	logOrphans(ctx, agentID, ReasonWorkerCrashed, report)
}

func logOrphans(ctx context.Context, agentID, reason string, report queue.OrphanReport) {
	if len(report.Failed) == 0 {
		return
	}
	logging.Ctx(ctx).Warn().
		Str("agent_id", agentID).
		Str("reason", reason).
		Int("failed", len(report.Failed)).
		Int("retried", len(report.Retried)).
		Msg("Recovered orphaned tasks")
}

// Serve runs ticks until ctx is done. It implements suture.Service.
func (l *Loop) Serve(ctx context.Context) error {
	logging.Info().
		Dur("tick_interval", l.config.TickInterval).
		Dur("health_interval", l.config.HealthInterval).
		Dur("analytics_interval", l.config.AnalyticsInterval).
		Msg("Coordination loop started")

	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			logging.Info().Uint64("ticks", l.tick).Msg("Coordination loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String names the service in supervisor logs.
func (l *Loop) String() string {
	return "coordination-loop"
}

// Err returns the escalation error after the loop has given up on the store.
func (l *Loop) Err() error {
	if v := l.fatalErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Tick runs one cycle. It returns suture.ErrTerminateSupervisorTree once
// the store breaker has opened and nil otherwise.
func (l *Loop) Tick(ctx context.Context) error {
	if l.escalated.Load() {
		return suture.ErrTerminateSupervisorTree
	}

	l.tick++
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.Ctx(ctx).With().Uint64("tick", l.tick).Logger()

	start := time.Now()
	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.runPhases(ctx)
	})
	metrics.RecordLoopTick(time.Since(start))

	if err != nil && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("Coordination tick finished with errors")
	}

	if l.escalated.Load() {
		l.escalate(ctx, err)
		return suture.ErrTerminateSupervisorTree
	}
	return nil
}

func (l *Loop) escalate(ctx context.Context, cause error) {
	fatal := fmt.Errorf("task store failed on %d consecutive ticks: %w",
		l.config.StoreFailureThreshold, cause)
	l.fatalErr.Store(fatal)

	logging.Ctx(ctx).Error().Err(fatal).Msg("Escalating task store failure")
	if l.alerts != nil {
		l.alerts.Emit(ctx, models.Alert{
			Kind:      models.AlertStoreUnavailable,
			Severity:  models.SeverityFatal,
			Message:   fatal.Error(),
			Value:     float64(l.config.StoreFailureThreshold),
			Threshold: float64(l.config.StoreFailureThreshold),
		})
	}
}

// runPhases runs every phase even when an earlier one failed and joins the errors.
func (l *Loop) runPhases(ctx context.Context) error {
	now := l.now()
	var errs []error

	if l.due(l.lastHealth, l.config.HealthInterval, now) {
		if err := l.healthPhase(ctx); err != nil {
			errs = append(errs, err)
		}
		l.lastHealth = now
	}

	if err := l.dispatchPhase(ctx); err != nil {
		errs = append(errs, err)
	}

	if l.due(l.lastAnalytics, l.config.AnalyticsInterval, now) {
		if err := l.analyticsPhase(ctx); err != nil {
			errs = append(errs, err)
		}
		l.lastAnalytics = now
	}

	return errors.Join(errs...)
}

func (l *Loop) due(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || interval <= 0 || now.Sub(last) >= interval
}

func (l *Loop) healthPhase(ctx context.Context) error {
	var errs []error

	if l.monitor != nil {
		result := l.monitor.CheckAll(ctx)
		if len(result.Crashed)+len(result.Restarted)+len(result.Retired) > 0 {
			logging.Ctx(ctx).Info().
				Strs("crashed", result.Crashed).
				Strs("restarted", result.Restarted).
				Strs("retired", result.Retired).
				Msg("Health pass changed worker state")
		}

		l.crashMu.Lock()
		errs = append(errs, l.crashErrs...)
		l.crashErrs = nil
		l.crashMu.Unlock()
		if len(errs) > 0 {
			metrics.RecordLoopPhaseError(PhaseHealth)
		}
	}

	if l.config.RunningTimeout > 0 {
		report, err := l.store.RecoverOrphans(ctx, "", l.config.RunningTimeout, ReasonRunningTimeout)
		if err != nil {
			metrics.RecordLoopPhaseError(PhaseOrphans)
			errs = append(errs, fmt.Errorf("running timeout sweep: %w", err))
		} else {
			logOrphans(ctx, "", ReasonRunningTimeout, report)
		}
	}
	return errors.Join(errs...)
}

// dispatchPhase drains each Alive worker's queue into its inbox. A task is
// only dequeued while the inbox has room, so nothing is claimed that cannot
// be handed off in this tick.
func (l *Loop) dispatchPhase(ctx context.Context) error {
	var errs []error
	for _, reg := range l.registry.List() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reg.Status() != models.WorkerAlive {
			continue
		}
		n, err := l.drain(ctx, reg)
		if n > 0 {
			logging.Ctx(ctx).Debug().Str("agent_id", reg.AgentID()).Int("delivered", n).Msg("Dispatched tasks")
		}
		if err != nil {
			metrics.RecordLoopPhaseError(PhaseDispatch)
			errs = append(errs, fmt.Errorf("dispatch %s: %w", reg.AgentID(), err))
		}
		metrics.UpdateInboxDepth(reg.AgentID(), reg.Process().InboxDepth())
	}
	return errors.Join(errs...)
}

func (l *Loop) drain(ctx context.Context, reg *worker.Registration) (int, error) {
	proc := reg.Process()
	agentID := reg.AgentID()
	delivered := 0

	for proc.InboxFree() > 0 {
		task, err := l.store.Dequeue(ctx, agentID, l.config.Owner)
		if err != nil {
			return delivered, err
		}
		if task == nil {
			return delivered, nil
		}
		if err := proc.Deliver(models.DeliveryFor(task)); err != nil {
			// The task stays Running; the crash hook or the running timeout recovers it.
			logging.Ctx(ctx).Error().Err(err).
				Str("agent_id", agentID).
				Str("task_id", task.ID).
				Msg("Failed to hand off dequeued task")
			return delivered, nil
		}
		delivered++
		metrics.RecordDelivery(agentID)
	}
	return delivered, nil
}

func (l *Loop) analyticsPhase(ctx context.Context) error {
	var errs []error

	if l.evaluator != nil {
		alerts, err := l.evaluator.Evaluate(ctx)
		if err != nil {
			metrics.RecordLoopPhaseError(PhaseAnalytics)
			errs = append(errs, fmt.Errorf("evaluate alerts: %w", err))
		}
		for _, a := range alerts {
			if l.alerts != nil {
				l.alerts.Emit(ctx, a)
			}
		}
	}

	if l.sampler != nil {
		n, err := l.sampler.Sample(ctx)
		if err != nil {
			metrics.RecordLoopPhaseError(PhaseSamples)
			// Sample storage is separate from the task store; never escalate on it.
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record metric samples")
		} else {
			logging.Ctx(ctx).Debug().Int("samples", n).Msg("Recorded metric samples")
		}
	}
	return errors.Join(errs...)
}
