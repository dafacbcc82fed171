// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/foreman/internal/alerting"
	"github.com/tomtom215/foreman/internal/api"
	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/coordinator"
	"github.com/tomtom215/foreman/internal/health"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/queue"
	"github.com/tomtom215/foreman/internal/samples"
	"github.com/tomtom215/foreman/internal/supervisor/services"
	"github.com/tomtom215/foreman/internal/worker"
)

// RunnerFactory builds the runner for one configured agent.
type RunnerFactory func(agent config.AgentConfig) worker.Runner

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithRunnerFactory replaces the child-process runner, e.g. with worker.MockRunner.
func WithRunnerFactory(f RunnerFactory) DaemonOption {
	return func(d *Daemon) { d.newRunner = f }
}

// WithVersion sets the version published in foreman_app_info.
func WithVersion(v string) DaemonOption {
	return func(d *Daemon) { d.version = v }
}

// Daemon is one assembled supervisor: stores, workers, control loop and API.
type Daemon struct {
	cfg       *config.Config
	version   string
	newRunner RunnerFactory
	startedAt time.Time

	store    *queue.Store
	samples  *samples.DuckDBStore
	emitter  *alerting.Emitter
	registry *worker.Registry
	monitor  *health.Monitor
	loop     *coordinator.Loop
	tree     *SupervisorTree
	httpSvc  *services.HTTPServerService

	mu        sync.Mutex
	cancel    context.CancelFunc
	requested bool
	force     bool
	closeOnce sync.Once
	closeErr  error
}

// NewDaemon opens the stores and wires every component. Nothing is started
// until Run.
func NewDaemon(cfg *config.Config, opts ...DaemonOption) (*Daemon, error) {
	d := &Daemon{
		cfg:       cfg,
		version:   "dev",
		startedAt: time.Now(),
	}
	d.newRunner = func(a config.AgentConfig) worker.Runner {
		return worker.NewProcess(worker.SpecFromConfig(a, cfg.APIURL(), cfg.Queue.InboxSize))
	}
	for _, opt := range opts {
		opt(d)
	}

	store, err := queue.Open(queueConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	d.store = store

	if cfg.Samples.Enabled {
		ss, err := samples.Open(context.Background(), cfg.Samples.Path)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open sample store: %w", err)
		}
		d.samples = ss
	}

	emitterCfg := alerting.DefaultEmitterConfig()
	if cfg.Alerts.RepeatInterval > 0 {
		emitterCfg.RepeatInterval = cfg.Alerts.RepeatInterval
	}
	d.emitter = alerting.NewEmitter(emitterCfg, nil)

	d.registry = worker.NewRegistry()
	for _, agent := range cfg.EnabledAgents() {
		if _, err := d.registry.Register(d.newRunner(agent)); err != nil {
			_ = d.closeStores()
			return nil, fmt.Errorf("register agent %s: %w", agent.ID, err)
		}
	}

	// The monitor's crash hook needs the loop, and the loop needs the monitor.
	d.monitor = health.NewMonitor(d.registry, health.ConfigFrom(cfg),
		health.WithAlerter(d.emitter),
		health.WithCrashHandler(func(ctx context.Context, agentID string) {
			d.loop.HandleCrash(ctx, agentID)
		}),
	)

	loopOpts := []coordinator.Option{
		coordinator.WithAlerter(d.emitter),
		coordinator.WithEvaluator(alerting.NewEvaluator(store, alerting.ThresholdsFrom(cfg.Alerts))),
	}
	if d.samples != nil {
		retention := time.Duration(cfg.Queue.RetentionDays) * 24 * time.Hour
		loopOpts = append(loopOpts, coordinator.WithSampler(samples.NewSampler(d.samples, store, d.registry, retention)))
	}
	d.loop = coordinator.NewLoop(coordinator.ConfigFrom(cfg), store, d.registry, d.monitor, loopOpts...)

	handlerOpts := []api.HandlerOption{
		api.WithShutdown(d.RequestShutdown),
		api.WithRetentionDays(cfg.Queue.RetentionDays),
		api.WithStartTime(d.startedAt),
	}
	if d.samples != nil {
		handlerOpts = append(handlerOpts, api.WithSamples(d.samples))
	}
	handler := api.NewHandler(store, d.registry, d.emitter, handlerOpts...)
	router := api.NewRouter(handler, api.ChiMiddlewareConfigFrom(cfg.Server))

	// No WriteTimeout: the alert stream is long-lived.
	server := &http.Server{
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	d.httpSvc = services.NewHTTPServerService(server, cfg.APIAddr(), 10*time.Second)

	tree, err := NewSupervisorTree(logging.NewSlogLogger(), DefaultTreeConfig())
	if err != nil {
		_ = d.closeStores()
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDataService(services.NewCompactorService(queue.NewCompactor(store)))
	tree.AddControlService(d.loop)
	tree.AddAPIService(d.httpSvc)
	d.tree = tree

	return d, nil
}

func queueConfigFrom(cfg *config.Config) queue.Config {
	qc := queue.DefaultConfig()
	qc.Path = cfg.Queue.Path
	qc.SyncWrites = cfg.Queue.SyncWrites
	qc.RetentionDays = cfg.Queue.RetentionDays
	if cfg.Queue.CleanupInterval > 0 {
		qc.CleanupInterval = cfg.Queue.CleanupInterval
	}
	if cfg.Queue.MaxTaskAttempts > 0 {
		qc.MaxTaskAttempts = cfg.Queue.MaxTaskAttempts
	}
	return qc
}

// Registry returns the worker registry.
func (d *Daemon) Registry() *worker.Registry {
	return d.registry
}

// Store returns the task store.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Emitter returns the alert emitter.
func (d *Daemon) Emitter() *alerting.Emitter {
	return d.emitter
}

// Bind reserves the control API address. Run calls it if the caller has not.
func (d *Daemon) Bind() (net.Addr, error) {
	return d.httpSvc.Bind()
}

// Run starts the daemon and blocks until ctx is canceled, a shutdown is
// requested through the API, or the control loop escalates. The stores are
// closed when Run returns.
//
// Run fails without entering the tree when the API address is taken or
// when an enabled worker exhausts its retry ceiling during startup.
func (d *Daemon) Run(ctx context.Context) error {
	metrics.SetAppInfo(d.version, runtime.Version())
	logger := logging.Ctx(ctx)

	if _, err := d.Bind(); err != nil {
		_ = d.closeStores()
		return err
	}

	report, err := d.store.RecoverOrphans(ctx, "", 0, coordinator.ReasonRestarted)
	if err != nil {
		_ = d.closeStores()
		return fmt.Errorf("recover orphaned tasks: %w", err)
	}
	if len(report.Failed) > 0 {
		logger.Warn().
			Int("failed", len(report.Failed)).
			Int("retried", len(report.Retried)).
			Msg("Recovered tasks left Running by a previous supervisor")
	}

	if err := d.monitor.StartAll(ctx); err != nil {
		logger.Error().Err(err).Msg("Workers failed to start")
		d.stopWorkers(true)
		_ = d.closeStores()
		return fmt.Errorf("start workers: %w", err)
	}
	logger.Info().
		Int("workers", len(d.registry.List())).
		Str("api", d.cfg.APIURL()).
		Msg("Foreman supervisor started")

	treeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.cancel = cancel
	requested := d.requested
	d.mu.Unlock()
	if requested {
		cancel()
	}

	treeErr := <-d.tree.ServeBackground(treeCtx)

	if unstopped, err := d.tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	d.mu.Lock()
	force := d.force
	d.mu.Unlock()
	d.stopWorkers(force)
	closeErr := d.closeStores()

	switch {
	case errors.Is(treeErr, suture.ErrTerminateSupervisorTree):
		cause := d.loop.Err()
		if cause == nil {
			cause = treeErr
		}
		return fmt.Errorf("supervisor escalated: %w", cause)
	case treeErr != nil && !errors.Is(treeErr, context.Canceled) && !errors.Is(treeErr, context.DeadlineExceeded):
		return fmt.Errorf("supervisor tree: %w", treeErr)
	}

	logger.Info().Bool("force", force).Msg("Foreman supervisor stopped")
	return closeErr
}

// RequestShutdown asks Run to stop. Force stops workers without a grace
// period. It never blocks.
func (d *Daemon) RequestShutdown(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requested = true
	d.force = d.force || force
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) stopWorkers(force bool) {
	timeout := d.cfg.Supervisor.StopTimeout
	if force {
		timeout = 0
	}
	if err := d.registry.StopAll(timeout); err != nil {
		logging.Error().Err(err).Msg("Some workers did not stop cleanly")
	}
}

// closeStores releases the stores and the alert bus once.
func (d *Daemon) closeStores() error {
	d.closeOnce.Do(func() {
		var errs []error
		if d.store != nil {
			if err := d.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close task store: %w", err))
			}
		}
		if d.samples != nil {
			if err := d.samples.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sample store: %w", err))
			}
		}
		if d.emitter != nil {
			if err := d.emitter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close alert bus: %w", err))
			}
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}
