// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package worker wraps the external agent programs Foreman supervises.

A Process owns exactly one OS process slot for one agent id. Start spawns
the configured command, IsAlive answers without blocking, and Stop does a
two-phase shutdown: SIGTERM to the process group, then SIGKILL once the
timeout elapses. A zero timeout kills immediately.

# Task Delivery

Each Process has a bounded inbox. Deliver never blocks; it fails with
ErrInboxFull when the inbox is at capacity. A pump goroutine writes each
delivered task to the child's stdin as one JSON line:

	{"id":"...","sender":"planner","recipient":"impl","kind":"spec_created","priority":2,"payload":{...},"created_at":"...","started_at":"...","attempt":1}

Workers report back through the control API using FOREMAN_API and
FOREMAN_AGENT_ID from their environment. FOREMAN_POLL_INTERVAL carries the
agent's configured poll interval.

Worker stdout and stderr are logged line by line with agent_id and stream
fields.

# Registry

Registry holds one Registration per agent id. A Registration starts its
process only when no live process exists for the id, so two processes for
the same agent never run at once.
*/
package worker
