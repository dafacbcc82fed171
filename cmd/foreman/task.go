// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/foreman/internal/client"
	"github.com/tomtom215/foreman/internal/models"
)

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Enqueue tasks and report their progress",
	}
	cmd.AddCommand(
		newTaskEnqueueCmd(opts),
		newTaskGetCmd(opts),
		newTaskStartCmd(opts),
		newTaskCompleteCmd(opts),
		newTaskFailCmd(opts),
	)
	return cmd
}

// taskAction runs fn against the task id given as the only argument and
// prints the resulting task.
func taskAction(opts *rootOptions, fn func(ctx context.Context, c *client.Client, id string) (*models.Task, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			task, err := fn(ctx, c, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		})(cmd, args)
	}
}

func newTaskEnqueueCmd(opts *rootOptions) *cobra.Command {
	req := &models.EnqueueRequest{}
	var payload string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a task for an agent and print its id",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(ctx context.Context, c *client.Client, cmd *cobra.Command) error {
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid JSON")
				}
				req.Payload = json.RawMessage(payload)
			}
			id, err := c.Enqueue(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.Sender, "from", "", "sending agent")
	cmd.Flags().StringVar(&req.Recipient, "to", "", "recipient agent")
	cmd.Flags().StringVar(&req.Kind, "kind", "", "task kind")
	cmd.Flags().IntVar(&req.Priority, "priority", 5, "priority 1-10, 1 is most urgent")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newTaskGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print a task",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction(opts, func(ctx context.Context, c *client.Client, id string) (*models.Task, error) {
			return c.GetTask(ctx, id)
		}),
	}
}

func newTaskStartCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "start ID",
		Short: "Claim a queued task",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction(opts, func(ctx context.Context, c *client.Client, id string) (*models.Task, error) {
			return c.StartTask(ctx, id, owner)
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "foreman-cli", "claiming worker")
	return cmd
}

func newTaskCompleteCmd(opts *rootOptions) *cobra.Command {
	var durationMillis int64
	cmd := &cobra.Command{
		Use:   "complete ID",
		Short: "Mark a running task completed",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction(opts, func(ctx context.Context, c *client.Client, id string) (*models.Task, error) {
			return c.CompleteTask(ctx, id, durationMillis)
		}),
	}
	cmd.Flags().Int64Var(&durationMillis, "duration-ms", 0, "measured duration (0 uses the wall clock since start)")
	return cmd
}

func newTaskFailCmd(opts *rootOptions) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "fail ID",
		Short: "Mark a running task failed",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction(opts, func(ctx context.Context, c *client.Client, id string) (*models.Task, error) {
			return c.FailTask(ctx, id, message)
		}),
	}
	cmd.Flags().StringVar(&message, "message", "", "failure reason")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
