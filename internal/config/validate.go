// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/foreman/internal/validation"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateHealth(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateSamples(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateAgents()
}

func requirePositive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if err := requirePositive("supervisor.tick_interval", c.Supervisor.TickInterval); err != nil {
		return err
	}
	if err := requirePositive("supervisor.analytics_interval", c.Supervisor.AnalyticsInterval); err != nil {
		return err
	}
	if c.Supervisor.StopTimeout < 0 {
		return fmt.Errorf("supervisor.stop_timeout must not be negative, got %s", c.Supervisor.StopTimeout)
	}
	return nil
}

func (c *Config) validateHealth() error {
	if err := requirePositive("health.interval", c.Health.Interval); err != nil {
		return err
	}
	if err := requirePositive("health.timeout", c.Health.Timeout); err != nil {
		return err
	}
	if c.Health.Timeout >= c.Health.Interval {
		return fmt.Errorf("health.timeout (%s) must be shorter than health.interval (%s)",
			c.Health.Timeout, c.Health.Interval)
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := requirePositive("queue.cleanup_interval", c.Queue.CleanupInterval); err != nil {
		return err
	}
	return requirePositive("queue.running_timeout", c.Queue.RunningTimeout)
}

func (c *Config) validateAlerts() error {
	if err := requirePositive("alerts.p95_window", c.Alerts.P95Window); err != nil {
		return err
	}
	if c.Alerts.RepeatInterval < 0 {
		return fmt.Errorf("alerts.repeat_interval must not be negative, got %s", c.Alerts.RepeatInterval)
	}
	return nil
}

func (c *Config) validateSamples() error {
	if c.Samples.Enabled && c.Samples.Path == "" {
		return fmt.Errorf("samples.path is required when samples.enabled=true")
	}
	return nil
}

func (c *Config) validateServer() error {
	if err := requirePositive("server.timeout", c.Server.Timeout); err != nil {
		return err
	}
	if c.Server.RateLimitReqs > 0 {
		return requirePositive("server.rate_limit_window", c.Server.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateAgents() error {
	seen := make(map[string]bool, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if seen[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.PollInterval < 0 {
			return fmt.Errorf("agents[%d] (%s): poll_interval must not be negative", i, a.ID)
		}
	}
	return nil
}
