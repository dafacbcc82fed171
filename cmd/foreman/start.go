// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/supervisor"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the supervisor in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd.Context(), opts)
		},
	}
}

func runStart(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.LoadWithKoanf(opts.configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Caller = cfg.Logging.Caller
	logging.Init(logCfg)

	if path := cfg.Supervisor.PIDFile; path != "" {
		if err := writePIDFile(path); err != nil {
			return err
		}
		defer func() {
			if err := removePIDFile(path); err != nil {
				logging.Warn().Err(err).Str("path", path).Msg("Failed to remove pidfile")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := supervisor.NewDaemon(cfg, supervisor.WithVersion(version))
	if err != nil {
		return fmt.Errorf("initialize supervisor: %w", err)
	}

	logging.Info().
		Str("version", version).
		Int("agents", len(cfg.EnabledAgents())).
		Str("queue_path", cfg.Queue.Path).
		Msg("Starting Foreman")

	return d.Run(ctx)
}
