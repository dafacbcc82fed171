// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/foreman/internal/client"
	"github.com/tomtom215/foreman/internal/config"
	"github.com/tomtom215/foreman/internal/worker"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	apiURL     string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "foreman",
		Short:         "Supervise a fleet of agent processes around a durable task queue",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "control API base URL (default: $"+worker.EnvAPI+" or the configured server)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout for client commands")

	root.AddCommand(
		newStartCmd(opts),
		newStopCmd(opts),
		newStatusCmd(opts),
		newQueueCmd(opts),
		newBottlenecksCmd(opts),
		newMetricsCmd(opts),
		newAlertsCmd(opts),
		newCleanupCmd(opts),
		newTaskCmd(opts),
	)
	return root
}

// client resolves the control API address and returns a client for it.
func (o *rootOptions) client() (*client.Client, error) {
	url := o.apiURL
	if url == "" {
		url = os.Getenv(worker.EnvAPI)
	}
	if url == "" {
		cfg, err := config.LoadWithKoanf(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("resolve control API: %w", err)
		}
		url = cfg.APIURL()
	}
	return client.New(url), nil
}
