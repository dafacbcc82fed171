// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	h := NewSlogHandlerWithLogger(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))

	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, false},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSlogHandler_Handle(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf)))

	logger.Warn("service restarting",
		"service", "coordinator",
		"attempts", 3,
		"backoff", 15*time.Second,
		"failing", true,
		"err", errors.New("boom"),
	)

	output := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"message":"service restarting"`,
		`"service":"coordinator"`,
		`"attempts":3`,
		`"failing":true`,
		`"err":"boom"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestSlogHandler_WithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogHandlerWithLogger(zerolog.New(&buf))
	h := base.WithAttrs([]slog.Attr{slog.String("layer", "control")}).WithGroup("supervisor").WithGroup("event")
	slog.New(h).Info("event", "type", "backoff")

	output := buf.String()
	if !strings.Contains(output, `"supervisor.event.layer":"control"`) {
		t.Errorf("expected grouped pre-configured attr, got: %s", output)
	}
	if !strings.Contains(output, `"supervisor.event.type":"backoff"`) {
		t.Errorf("expected grouped record attr, got: %s", output)
	}

	if base.WithGroup("") != base {
		t.Error("expected WithGroup(\"\") to return the same handler")
	}
}

func TestSlogHandler_GroupAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf))).Info("grouped",
		slog.Group("worker", slog.String("id", "impl"), slog.Int("pid", 42)))

	output := buf.String()
	if !strings.Contains(output, `"worker.id":"impl"`) || !strings.Contains(output, `"worker.pid":42`) {
		t.Errorf("expected flattened group attrs, got: %s", output)
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
		{slog.LevelError + 4, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.in); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	NewSlogLogger().Info("from slog")

	if !strings.Contains(buf.String(), "from slog") {
		t.Errorf("expected slog message routed to zerolog, got: %s", buf.String())
	}
}
