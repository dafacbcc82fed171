// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/foreman/internal/client"
	"github.com/tomtom215/foreman/internal/models"
)

// withClient runs fn with a client and a context bounded by --timeout.
func withClient(opts *rootOptions, fn func(ctx context.Context, c *client.Client, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c, err := opts.client()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()
		return fn(ctx, c, cmd)
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running supervisor to shut down",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			if err := c.Shutdown(ctx, force); err != nil {
				return err
			}
			mode := "graceful"
			if force {
				mode = "forced"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s shutdown requested\n", mode)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "kill workers without waiting for the stop timeout")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var agent string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			report, err := c.Status(ctx, agent)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			return printWorkers(cmd.OutOrStdout(), report)
		}),
	}
	cmd.Flags().StringVar(&agent, "agent", "", "only show this agent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	var agent string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queued tasks per agent and priority band",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			depths, err := c.Queue(ctx, agent)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), depths)
			}
			return printQueue(cmd.OutOrStdout(), depths)
		}),
	}
	cmd.Flags().StringVar(&agent, "agent", "", "only show this agent")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newBottlenecksCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "bottlenecks",
		Short: "List the slowest completed tasks and duration percentiles",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			report, err := c.Bottlenecks(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			return printBottlenecks(cmd.OutOrStdout(), report)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of tasks to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	var agent string
	var hours int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show task statistics and recorded samples for one agent",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			m, err := c.AgentMetrics(ctx, agent, hours)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		}),
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().IntVar(&hours, "hours", 24, "sample window in hours")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var follow bool
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print recent alerts, or stream new ones with --follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if follow {
				err := c.FollowAlerts(cmd.Context(), func(a models.Alert) error {
					return printAlert(out, a)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			alerts, err := c.Alerts(ctx, limit)
			if err != nil {
				return err
			}
			for _, a := range alerts {
				if err := printAlert(out, a); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of alerts to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream alerts until interrupted")
	return cmd
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished tasks older than the retention period",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			deleted, err := c.Cleanup(ctx, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d tasks\n", deleted)
			return nil
		}),
	}
	cmd.Flags().IntVar(&days, "older-than-days", 0, "age cutoff in days (0 uses the configured retention)")
	return cmd
}
