// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

// Package samples persists append-only Metric Samples in DuckDB.
package samples

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/google/uuid"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// QueryFilter selects samples. Zero fields do not filter.
type QueryFilter struct {
	AgentID string
	Metric  string
	Since   time.Time
	Until   time.Time
	Limit   int
}

// DuckDBStore is the metric_samples table. Rows are only ever inserted
// and, past retention, deleted.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the DuckDB file at path and ensures the
// metric_samples table exists.
func Open(ctx context.Context, path string) (*DuckDBStore, error) {
	if path == "" {
		return nil, fmt.Errorf("samples path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create samples directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open samples database: %w", err)
	}
	// One connection keeps an in-memory database shared across calls.
	db.SetMaxOpenConns(1)

	s := NewDuckDBStore(db)
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewDuckDBStore wraps an open database. The caller must call CreateTable.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the metric_samples table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS metric_samples (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_samples_agent_metric ON metric_samples(agent_id, metric);
		CREATE INDEX IF NOT EXISTS idx_samples_recorded_at ON metric_samples(recorded_at DESC);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Debug().Msg("Metric samples table created/verified")
	return nil
}

// Record appends samples in one transaction. Missing ids and timestamps
// are filled in.
func (s *DuckDBStore) Record(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sample transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metric_samples (id, agent_id, metric, value, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range samples {
		sample := &samples[i]
		if sample.AgentID == "" || sample.Metric == "" {
			return fmt.Errorf("%w: sample needs agent_id and metric", models.ErrInvalidArgument)
		}
		if sample.ID == "" {
			sample.ID = uuid.New().String()
		}
		if sample.RecordedAt.IsZero() {
			sample.RecordedAt = now
		}
		if _, err := stmt.ExecContext(ctx, sample.ID, sample.AgentID, sample.Metric, sample.Value, sample.RecordedAt); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// Query returns matching samples, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]models.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conditions []string
	var args []interface{}
	conditions, args = appendStringCondition(conditions, args, "agent_id", filter.AgentID)
	conditions, args = appendStringCondition(conditions, args, "metric", filter.Metric)
	if !filter.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, filter.Until)
	}

	query := `SELECT id, agent_id, metric, value, recorded_at FROM metric_samples`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY recorded_at DESC, metric ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Metric, &m.Value, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		m.RecordedAt = m.RecordedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return out, nil
}

// Delete removes samples recorded before olderThan.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE recorded_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old samples: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Deleted old metric samples")
	}
	return count, nil
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// appendStringCondition adds a string equality condition if value is non-empty.
func appendStringCondition(conditions []string, args []interface{}, column, value string) ([]string, []interface{}) {
	if value != "" {
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
	}
	return conditions, args
}
