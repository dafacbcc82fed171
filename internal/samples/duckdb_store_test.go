// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

//go:build integration

package samples

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open in-memory DuckDB: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestDuckDBStore_CreateTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var tableName string
	err := store.db.QueryRowContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_name = 'metric_samples'").Scan(&tableName)
	if err != nil {
		t.Fatalf("Table metric_samples does not exist: %v", err)
	}

	// Idempotent
	if err := store.CreateTable(ctx); err != nil {
		t.Errorf("second CreateTable failed: %v", err)
	}
}

func TestDuckDBStore_RecordAndQuery(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rows := []models.MetricSample{
		{AgentID: "impl", Metric: models.MetricTasksCompleted, Value: 3, RecordedAt: base},
		{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 9, RecordedAt: base},
		{AgentID: "impl", Metric: models.MetricTasksCompleted, Value: 5, RecordedAt: base.Add(time.Minute)},
		{AgentID: "review", Metric: models.MetricTasksCompleted, Value: 1, RecordedAt: base.Add(time.Minute)},
	}
	if err := store.Record(ctx, rows); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	for _, r := range rows {
		if r.ID == "" {
			t.Error("Record should assign ids")
		}
	}

	all, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(all))
	}
	if !all[0].RecordedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("expected newest first, got %v", all[0].RecordedAt)
	}

	impl, err := store.Query(ctx, QueryFilter{AgentID: "impl", Metric: models.MetricTasksCompleted})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(impl) != 2 || impl[0].Value != 5 || impl[1].Value != 3 {
		t.Errorf("unexpected impl samples: %+v", impl)
	}

	recent, err := store.Query(ctx, QueryFilter{Since: base.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 samples since +30s, got %d", len(recent))
	}

	limited, err := store.Query(ctx, QueryFilter{Limit: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestDuckDBStore_RecordRejectsIncomplete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.Record(ctx, []models.MetricSample{
		{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 1},
		{AgentID: "", Metric: models.MetricQueueDepth, Value: 2},
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	// The batch is all-or-nothing.
	got, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected rollback, found %d samples", len(got))
	}
}

func TestDuckDBStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rows := []models.MetricSample{
		{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 1, RecordedAt: base.Add(-48 * time.Hour)},
		{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 2, RecordedAt: base.Add(-2 * time.Hour)},
		{AgentID: "impl", Metric: models.MetricQueueDepth, Value: 3, RecordedAt: base},
	}
	if err := store.Record(ctx, rows); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	deleted, err := store.Delete(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d, want 1", deleted)
	}

	remaining, err := store.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining samples, got %d", len(remaining))
	}
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "samples.duckdb")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Record(ctx, []models.MetricSample{
		{AgentID: "impl", Metric: models.MetricMemoryMB, Value: 128, RecordedAt: base},
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Query(ctx, QueryFilter{AgentID: "impl"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].Value != 128 {
		t.Errorf("samples did not persist: %+v", got)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
