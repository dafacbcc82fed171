// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

// Package queue is the durable task store and priority queue.
//
// Tasks live in BadgerDB. Every state change is one serializable Badger
// transaction; two transactions that read the same queued entry and both try
// to claim it cannot both commit (the loser gets badger.ErrConflict, retries,
// and finds the entry gone). That is the only synchronization the queue
// relies on for exactly-once dequeue.
//
// Key layout:
//
//	task/<id>                                 JSON-encoded models.Task
//	q/<recipient>\x00<priority:02d>/<seq:020d>  queued index, lexical order = dequeue order
//	run/<recipient>\x00<id>                   running index
//	dur/<MaxInt64-duration:020d>/<id>         completed durations, slowest first
//	end/<ended unixnano:020d>/<id>            finished index for retention and windows
//	meta/seq                                  badger.Sequence giving arrival order
package queue

import (
	"time"
)

// Config holds task store configuration.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	Path string

	// InMemory runs Badger without touching disk. Tests only.
	InMemory bool

	// SyncWrites forces fsync after every commit.
	SyncWrites bool

	// RetentionDays is how long Completed and Failed tasks are kept.
	RetentionDays int

	// CleanupInterval is the period of the background retention pass.
	CleanupInterval time.Duration

	// MaxTaskAttempts bounds how often an orphaned task is re-enqueued.
	// 1 disables orphan retry.
	MaxTaskAttempts int

	// ConflictRetries is how often a transaction is retried on badger.ErrConflict.
	ConflictRetries int

	// GCRatio is the discard ratio for value log garbage collection.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for Badger.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "./data/tasks",
		SyncWrites:      true,
		RetentionDays:   7,
		CleanupInterval: time.Hour,
		MaxTaskAttempts: 3,
		ConflictRetries: 32,
		GCRatio:         0.5,
		CloseTimeout:    30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return &ConfigError{Field: "Path", Message: "task store path is required"}
	}
	if c.RetentionDays < 0 {
		return &ConfigError{Field: "RetentionDays", Message: "must not be negative"}
	}
	if c.CleanupInterval <= 0 {
		return &ConfigError{Field: "CleanupInterval", Message: "must be positive"}
	}
	if c.MaxTaskAttempts < 1 {
		return &ConfigError{Field: "MaxTaskAttempts", Message: "must be at least 1"}
	}
	if c.ConflictRetries < 1 {
		return &ConfigError{Field: "ConflictRetries", Message: "must be at least 1"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1 exclusive"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "queue config: " + e.Field + " " + e.Message
}
