// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

// Package main is the foreman command.
//
// `foreman start` runs the supervisor in the foreground: it loads the
// configuration, recovers tasks a previous run left Running, starts every
// enabled agent and serves the control API until SIGINT, SIGTERM or
// `foreman stop`. Every other subcommand is a thin client of that API.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (FOREMAN_*)
//   - Config file (--config, or foreman.yaml in the working directory)
//   - Built-in defaults
//
// Client subcommands find the daemon through --api, then FOREMAN_API (set for
// every worker process), then the server section of the configuration.
//
// # Example Usage
//
//	foreman start --config /etc/foreman/foreman.yaml
//	foreman task enqueue --from planner --to impl --kind implement --priority 2
//	foreman status --agent impl
//	foreman bottlenecks --limit 5
//	foreman alerts --follow
//	foreman stop --force
//
// # Exit Status
//
// foreman exits 1 when a command fails. `foreman start` also exits 1 when an
// enabled agent exhausts its restart budget during startup or the supervisor
// escalates.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "foreman:", err)
		os.Exit(1)
	}
}
