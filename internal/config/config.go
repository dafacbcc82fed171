// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package config provides layered configuration for Foreman.

# Configuration Sources

Configuration is loaded with koanf in three layers, later layers winning:

 1. Built-in defaults (defaultConfig)
 2. A YAML file: the --config flag, FOREMAN_CONFIG, ./foreman.yaml, or
    /etc/foreman/foreman.yaml, whichever is found first
 3. FOREMAN_* environment variables mapped through envTransformFunc

Agents can only be declared in the YAML file:

	agents:
	  - id: impl
	    command: /usr/local/bin/impl-agent
	    args: ["--model", "large"]
	    poll_interval: 10s
	  - id: review
	    enabled: false
	    command: /usr/local/bin/review-agent
*/
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete Foreman configuration.
type Config struct {
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Health     HealthConfig     `koanf:"health"`
	Queue      QueueConfig      `koanf:"queue"`
	Alerts     AlertsConfig     `koanf:"alerts"`
	Samples    SamplesConfig    `koanf:"samples"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Agents     []AgentConfig    `koanf:"agents" validate:"dive"`
}

// SupervisorConfig controls the coordination loop and process lifecycle.
//
// Environment Variables:
//   - FOREMAN_TICK_INTERVAL: coordination loop tick (default: 5s)
//   - FOREMAN_ANALYTICS_INTERVAL: bottleneck/alert evaluation period (default: 1m)
//   - FOREMAN_STOP_TIMEOUT: graceful stop budget per worker (default: 10s)
//   - FOREMAN_STORE_FAILURE_THRESHOLD: consecutive store failures before escalation (default: 5)
//   - FOREMAN_PID_FILE: pidfile written by `foreman start`
type SupervisorConfig struct {
	TickInterval          time.Duration `koanf:"tick_interval"`
	AnalyticsInterval     time.Duration `koanf:"analytics_interval"`
	StopTimeout           time.Duration `koanf:"stop_timeout"`
	StoreFailureThreshold int           `koanf:"store_failure_threshold" validate:"min=1"`
	PIDFile               string        `koanf:"pid_file"`
}

// HealthConfig controls the health monitor.
//
// Environment Variables:
//   - FOREMAN_HEALTH_INTERVAL: liveness check period (default: 30s)
//   - FOREMAN_HEALTH_TIMEOUT: per-check timeout (default: 2s)
//   - FOREMAN_MAX_RETRIES: respawns before a worker is retired (default: 3)
//   - FOREMAN_MAX_MEMORY_MB: per-worker RSS limit, 0 disables (default: 0)
//   - FOREMAN_MAX_CPU_PERCENT: per-worker CPU limit, 0 disables (default: 0)
type HealthConfig struct {
	Interval      time.Duration `koanf:"interval"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxRetries    int           `koanf:"max_retries" validate:"min=0,max=100"`
	MaxMemoryMB   float64       `koanf:"max_memory_mb" validate:"min=0"`
	MaxCPUPercent float64       `koanf:"max_cpu_percent" validate:"min=0"`
}

// QueueConfig controls the durable task store.
//
// Environment Variables:
//   - FOREMAN_QUEUE_PATH: Badger directory (default: ./data/tasks)
//   - FOREMAN_QUEUE_SYNC_WRITES: fsync every commit (default: true)
//   - FOREMAN_RETENTION_DAYS: days Completed/Failed tasks are kept (default: 7)
//   - FOREMAN_CLEANUP_INTERVAL: retention pass period (default: 1h)
//   - FOREMAN_RUNNING_TIMEOUT: Running tasks older than this are orphaned (default: 30m)
//   - FOREMAN_MAX_TASK_ATTEMPTS: attempts for an orphaned task, 1 disables retry (default: 3)
//   - FOREMAN_INBOX_SIZE: per-worker delivery buffer (default: 64)
type QueueConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	SyncWrites      bool          `koanf:"sync_writes"`
	RetentionDays   int           `koanf:"retention_days" validate:"min=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RunningTimeout  time.Duration `koanf:"running_timeout"`
	MaxTaskAttempts int           `koanf:"max_task_attempts" validate:"min=1"`
	InboxSize       int           `koanf:"inbox_size" validate:"min=1,max=100000"`
}

// AlertsConfig holds the alert thresholds.
//
// Environment Variables:
//   - FOREMAN_ALERT_SLOW_TASK_MS (default: 60000)
//   - FOREMAN_ALERT_P95_MS (default: 30000)
//   - FOREMAN_ALERT_P95_WINDOW (default: 1h)
//   - FOREMAN_ALERT_MAX_QUEUE_DEPTH (default: 50)
//   - FOREMAN_ALERT_MAX_FAILURE_RATE (default: 0.25)
//   - FOREMAN_ALERT_MIN_SAMPLES: finished tasks needed before rate and p95 alerts fire (default: 5)
//   - FOREMAN_ALERT_REPEAT_INTERVAL: minimum gap between repeats of one alert (default: 5m)
type AlertsConfig struct {
	SlowTaskMS     int64         `koanf:"slow_task_ms" validate:"min=0"`
	P95MS          int64         `koanf:"p95_ms" validate:"min=0"`
	P95Window      time.Duration `koanf:"p95_window"`
	MaxQueueDepth  int           `koanf:"max_queue_depth" validate:"min=0"`
	MaxFailureRate float64       `koanf:"max_failure_rate" validate:"min=0,max=1"`
	MinSamples     int           `koanf:"min_samples" validate:"min=1"`
	RepeatInterval time.Duration `koanf:"repeat_interval"`
}

// SamplesConfig controls the DuckDB metric sample table.
//
// Environment Variables:
//   - FOREMAN_SAMPLES_ENABLED (default: true)
//   - FOREMAN_SAMPLES_PATH: DuckDB file (default: ./data/samples.duckdb)
type SamplesConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ServerConfig controls the control API listener.
//
// Environment Variables:
//   - FOREMAN_HTTP_HOST (default: 127.0.0.1)
//   - FOREMAN_HTTP_PORT (default: 7478)
//   - FOREMAN_HTTP_TIMEOUT: read/write timeout (default: 30s)
//   - FOREMAN_RATE_LIMIT_REQUESTS: mutating requests per window per IP (default: 600)
//   - FOREMAN_RATE_LIMIT_WINDOW (default: 1m)
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - FOREMAN_LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - FOREMAN_LOG_FORMAT: json, console (default: json)
//   - FOREMAN_LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// AgentConfig declares one supervised worker program.
type AgentConfig struct {
	ID           string            `koanf:"id" validate:"required,agentid"`
	Enabled      *bool             `koanf:"enabled"`
	Command      string            `koanf:"command" validate:"required"`
	Args         []string          `koanf:"args"`
	Env          map[string]string `koanf:"env"`
	Dir          string            `koanf:"dir"`
	PollInterval time.Duration     `koanf:"poll_interval"`
}

// IsEnabled reports whether the agent should be started. Agents are enabled
// unless the file says otherwise.
func (a *AgentConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// EnabledAgents returns the agents that should be started.
func (c *Config) EnabledAgents() []AgentConfig {
	out := make([]AgentConfig, 0, len(c.Agents))
	for i := range c.Agents {
		if c.Agents[i].IsEnabled() {
			out = append(out, c.Agents[i])
		}
	}
	return out
}

// APIAddr returns the host:port the control API listens on.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// APIURL returns the base URL clients use to reach the control API.
func (c *Config) APIURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}
