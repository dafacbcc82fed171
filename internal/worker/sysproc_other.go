// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

//go:build !unix

package worker

import "os/exec"

func configureProcAttr(*exec.Cmd) {}

// terminate has no graceful equivalent without process groups; Stop falls
// through to kill after the timeout.
func terminate(*exec.Cmd) error {
	return nil
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
