// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package logging

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// maxLineBytes caps a buffered partial line; longer output is flushed as-is.
const maxLineBytes = 64 * 1024

// LineWriter is an io.Writer that logs each complete line written to it.
// Worker processes have their stdout and stderr attached to one of these so
// agent output lands in the daemon log tagged with agent_id and stream.
type LineWriter struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	buf    []byte
}

// NewLineWriter returns a LineWriter that logs at level with the given fields.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLineWriter(logger zerolog.Logger, level zerolog.Level, agentID, stream string) *LineWriter {
	return &LineWriter{
		logger: logger.With().Str("agent_id", agentID).Str("stream", stream).Logger(),
		level:  level,
	}
}

// Write buffers p and emits one log event per newline-terminated line.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineBytes {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.WithLevel(w.level).Str("line", string(line)).Msg("agent output")
}
