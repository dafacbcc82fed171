// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package alerting raises and delivers supervisor alerts.

An Evaluator reads task analytics and applies four threshold policies:

  - slow_task (warning): a single Completed task ran longer than slow_task_ms
  - p95_exceeded (warning): an agent's rolling-window p95 is above p95_ms
  - failure_rate (critical): failed/(completed+failed) is above max_failure_rate
  - queue_depth (critical): an agent has more than max_queue_depth Queued tasks

The window policies need min_samples finished tasks before they fire.

An Emitter delivers every alert, including the worker_retired,
resource_limit and store_unavailable alerts raised elsewhere. Delivery means
a structured log line, the foreman_alerts_emitted_total counter, a slot in
the recent-alert ring, and a message on the in-process watermill topic
foreman.alerts. Repeats of one warning or critical condition are limited to
one per repeat_interval; fatal alerts always go through.
*/
package alerting
