// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package models defines the data structures shared across Foreman.

Key Components:

  - Task: a prioritized unit of addressed work and its lifecycle status
  - WorkerInfo: runtime view of one supervised agent process
  - Alert: a threshold breach emitted by the analytics pass
  - MetricSample: an append-only observation of a per-agent counter
  - Analytics views: SlowTask, AgentStats, QueueDepth, Percentiles
  - APIResponse: the control API envelope and its request bodies
  - Errors: sentinel and typed errors shared by the store, the worker
    wrappers and the HTTP layer

Task Lifecycle:

	Queued ──dequeue/markStarted──▶ Running ──markCompleted──▶ Completed
	                                   │
	                                   └──────markFailed─────▶ Failed

No other transition is legal. A Running task whose worker dies is failed
with an "orphaned:" message and, while attempts remain, re-enqueued as a new
task that points back at it through RetryOf.

Priority:

Priority 1 is the most urgent and 10 the least. For queue-depth reporting
the range is split into three bands: high (1-3), normal (4-7), low (8-10).
*/
package models
