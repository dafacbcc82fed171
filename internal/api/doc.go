// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package api provides the HTTP control API for Foreman.

The API is the server side of the command surface. The foreman CLI talks to
it for status and analytics, and worker programs use it to report the
outcome of the tasks they were handed.

Endpoint Categories:

1. Health (/api/v1/health/):
  - live: liveness probe

2. Supervisor (/api/v1/):
  - status: per-worker liveness, uptime and resource usage
  - queue: Queued task counts per agent and priority band
  - bottlenecks: slowest completed tasks and duration percentiles
  - agents/{id}/metrics: aggregate stats and recent metric samples for one agent
  - alerts, alerts/stream: recent alerts and a newline-delimited JSON feed
  - cleanup, shutdown: retention pass and supervisor shutdown

3. Tasks (/api/v1/tasks/):
  - POST /: enqueue
  - GET /{id}: fetch one task
  - POST /{id}/start, /{id}/complete, /{id}/fail: state transitions

Mutating task endpoints are rate limited per client IP with go-chi/httprate.
Every response uses the models.APIResponse envelope. Store errors map to
HTTP status codes:

	ErrTaskNotFound, ErrUnknownAgent      404
	ErrInvalidTransition, ErrAlreadyRunning 409
	validation, ErrInvalidArgument        400
	ErrStoreUnavailable, ErrStoreClosed   503

Usage Example:

	handler := api.NewHandler(store, registry, emitter,
	    api.WithSamples(sampleStore),
	    api.WithShutdown(daemon.RequestShutdown),
	)
	router := api.NewRouter(handler, api.ChiMiddlewareConfigFrom(cfg.Server))
	server := &http.Server{Addr: cfg.APIAddr(), Handler: router.SetupChi()}

Prometheus metrics are served on /metrics.
*/
package api
