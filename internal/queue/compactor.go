// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/foreman/internal/logging"
)

// Compactor runs the retention pass on a fixed interval.
type Compactor struct {
	store    *Store
	interval time.Duration
	days     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool

	// Stats
	lastRun     time.Time
	lastRemoved int
}

// NewCompactor creates a compactor using the store's retention settings.
func NewCompactor(store *Store) *Compactor {
	cfg := store.Config()
	return &Compactor{
		store:    store,
		interval: cfg.CleanupInterval,
		days:     cfg.RetentionDays,
	}
}

// Start begins the background retention loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().
		Dur("interval", c.interval).
		Int("retention_days", c.days).
		Msg("Task compactor started")
	return nil
}

// Stop gracefully stops the retention loop.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Task compactor stopped")
}

// IsRunning returns whether the compactor is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastRun returns when the last pass finished and how many tasks it removed.
func (c *Compactor) LastRun() (time.Time, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastRemoved
}

func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.RunNow(c.ctx)
		}
	}
}

// RunNow runs one retention pass immediately.
func (c *Compactor) RunNow(ctx context.Context) int {
	removed, err := c.store.Cleanup(ctx, c.days)
	if err != nil {
		logging.Error().Err(err).Msg("Task retention pass failed")
	}
	RecordCleanupRun()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.lastRemoved = removed
	c.mu.Unlock()
	return removed
}
