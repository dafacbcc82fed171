// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package supervisor assembles and runs the Foreman daemon under suture v4.

# Overview

The long-running services are organized into three layers:

	RootSupervisor ("foreman")
	├── DataSupervisor ("data-layer")
	│   └── CompactorService (retention pass over the task store)
	├── ControlSupervisor ("control-layer")
	│   └── coordinator.Loop (health, dispatch, analytics)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (control API)

Worker processes are not suture services. They are child processes owned by
the worker.Registry and supervised by health.Monitor from inside the
coordination loop, which applies the bounded-respawn policy.

# Escalation

The coordination loop returns suture.ErrTerminateSupervisorTree once its
store circuit breaker opens. That error tears down every layer, Run returns
it, and the foreman start command exits non-zero.

# Daemon

Daemon owns everything the tree does not: the Badger task store, the DuckDB
sample store, the alert emitter and the worker registry. Run performs the
startup sequence (orphan recovery, worker spawn, tree start) and the
shutdown sequence:

 1. cancel the tree (loop, compactor, HTTP server)
 2. stop every worker with the configured stop timeout, or immediately when forced
 3. close the stores and the alert bus

# Usage Example

	cfg, err := config.LoadWithKoanf(path)
	if err != nil {
	    return err
	}
	d, err := supervisor.NewDaemon(cfg)
	if err != nil {
	    return err
	}
	return d.Run(ctx)
*/
package supervisor
