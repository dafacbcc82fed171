// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"foreman.yaml",
	"foreman.yml",
	"/etc/foreman/foreman.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "FOREMAN_CONFIG"

// envPrefix scopes which environment variables are considered at all.
const envPrefix = "FOREMAN_"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			TickInterval:          5 * time.Second,
			AnalyticsInterval:     time.Minute,
			StopTimeout:           10 * time.Second,
			StoreFailureThreshold: 5,
			PIDFile:               "./data/foreman.pid",
		},
		Health: HealthConfig{
			Interval:      30 * time.Second,
			Timeout:       2 * time.Second,
			MaxRetries:    3,
			MaxMemoryMB:   0, // unlimited
			MaxCPUPercent: 0, // unlimited
		},
		Queue: QueueConfig{
			Path:            "./data/tasks",
			SyncWrites:      true,
			RetentionDays:   7,
			CleanupInterval: time.Hour,
			RunningTimeout:  30 * time.Minute,
			MaxTaskAttempts: 3,
			InboxSize:       64,
		},
		Alerts: AlertsConfig{
			SlowTaskMS:     60000,
			P95MS:          30000,
			P95Window:      time.Hour,
			MaxQueueDepth:  50,
			MaxFailureRate: 0.25,
			MinSamples:     5,
			RepeatInterval: 5 * time.Minute,
		},
		Samples: SamplesConfig{
			Enabled: true,
			Path:    "./data/samples.duckdb",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7478,
			Timeout:         30 * time.Second,
			RateLimitReqs:   600,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in defaults without consulting files or environment.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: explicitPath if set, otherwise the first file findConfigFile locates
//  3. Environment Variables: FOREMAN_* overrides
//
// An explicitPath that does not exist is an error; a missing default file is not.
func LoadWithKoanf(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless explicit)
	configPath := explicitPath
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	} else {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lowercased environment variable names (without the
// FOREMAN_ prefix) to koanf config paths.
var envMappings = map[string]string{
	// Supervisor
	"tick_interval":           "supervisor.tick_interval",
	"analytics_interval":      "supervisor.analytics_interval",
	"stop_timeout":            "supervisor.stop_timeout",
	"store_failure_threshold": "supervisor.store_failure_threshold",
	"pid_file":                "supervisor.pid_file",

	// Health monitor
	"health_interval": "health.interval",
	"health_timeout":  "health.timeout",
	"max_retries":     "health.max_retries",
	"max_memory_mb":   "health.max_memory_mb",
	"max_cpu_percent": "health.max_cpu_percent",

	// Task store
	"queue_path":        "queue.path",
	"queue_sync_writes": "queue.sync_writes",
	"retention_days":    "queue.retention_days",
	"cleanup_interval":  "queue.cleanup_interval",
	"running_timeout":   "queue.running_timeout",
	"max_task_attempts": "queue.max_task_attempts",
	"inbox_size":        "queue.inbox_size",

	// Alert thresholds
	"alert_slow_task_ms":     "alerts.slow_task_ms",
	"alert_p95_ms":           "alerts.p95_ms",
	"alert_p95_window":       "alerts.p95_window",
	"alert_max_queue_depth":  "alerts.max_queue_depth",
	"alert_max_failure_rate": "alerts.max_failure_rate",
	"alert_min_samples":      "alerts.min_samples",
	"alert_repeat_interval":  "alerts.repeat_interval",

	// Metric samples
	"samples_enabled": "samples.enabled",
	"samples_path":    "samples.path",

	// Control API
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - FOREMAN_TICK_INTERVAL -> supervisor.tick_interval
//   - FOREMAN_MAX_RETRIES -> health.max_retries
//   - FOREMAN_LOG_LEVEL -> logging.level
//
// Unmapped keys return "" and are skipped, which also keeps the variables
// Foreman sets for its own workers (FOREMAN_AGENT_ID, FOREMAN_API, ...) out
// of the daemon's config.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
	return envMappings[key]
}
