// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

//go:build unix

package health

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/worker"
)

// Kill a real worker out-of-band; one check pass later it is Alive again
// with restartCount=1 and a new pid.
func TestMonitor_ScenarioC_KilledWorkerIsRespawned(t *testing.T) {
	proc := worker.NewProcess(worker.Spec{
		AgentID: "impl",
		Command: "/bin/sh",
		Args:    []string{"-c", "exec sleep 30"},
	})
	t.Cleanup(func() { _ = proc.Stop(0) })

	m, _, crashed := setupMonitor(t, testConfig(), proc)
	ctx := context.Background()
	m.CheckAll(ctx)

	oldPID := proc.PID()
	if err := syscall.Kill(oldPID, syscall.SIGKILL); err != nil {
		t.Fatalf("kill: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for proc.IsAlive() {
		if time.Now().After(deadline) {
			t.Fatal("killed process still reported alive")
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.CheckAll(ctx)

	info := status(t, m, "impl")
	if info.Status != models.WorkerAlive || info.RestartCount != 1 {
		t.Fatalf("after respawn: status=%s restarts=%d, want alive/1", info.Status, info.RestartCount)
	}
	if info.PID == 0 || info.PID == oldPID {
		t.Errorf("pid = %d, want a new process (old %d)", info.PID, oldPID)
	}
	if len(*crashed) != 1 {
		t.Errorf("crash handler calls = %d, want 1", len(*crashed))
	}
}
