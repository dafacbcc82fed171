// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLineWriter_SplitsLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewLineWriter(zerolog.New(&buf), zerolog.InfoLevel, "impl", "stdout")

	if _, err := w.Write([]byte("first\nsec")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("ond\r\n\nthird")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines before flush, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"line":"first"`) || !strings.Contains(lines[1], `"line":"second"`) {
		t.Errorf("unexpected lines: %v", lines)
	}
	if !strings.Contains(lines[0], `"agent_id":"impl"`) || !strings.Contains(lines[0], `"stream":"stdout"`) {
		t.Errorf("expected agent_id and stream fields: %s", lines[0])
	}

	w.Flush()
	if !strings.Contains(buf.String(), `"line":"third"`) {
		t.Errorf("expected partial line after Flush, got: %s", buf.String())
	}
}

func TestLineWriter_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewLineWriter(zerolog.New(&buf), zerolog.WarnLevel, "review", "stderr")
	_, _ = w.Write([]byte("oops\n"))

	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn level, got: %s", buf.String())
	}
}
