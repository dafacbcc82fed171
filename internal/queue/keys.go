// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

// Prefix keys for the task table and its indexes.
const (
	prefixTask    = "task/"
	prefixQueued  = "q/"
	prefixRunning = "run/"
	prefixDur     = "dur/"
	prefixEnded   = "end/"
	keySequence   = "meta/seq"

	// sep ends the recipient component so "impl" never matches "impl2".
	sep = "\x00"
)

func taskKey(id string) []byte {
	return []byte(prefixTask + id)
}

func queuedPrefix(recipient string) []byte {
	if recipient == "" {
		return []byte(prefixQueued)
	}
	return []byte(prefixQueued + recipient + sep)
}

func queuedKey(t *models.Task) []byte {
	return []byte(fmt.Sprintf("%s%s%s%02d/%020d", prefixQueued, t.Recipient, sep, t.Priority, t.Seq))
}

func runningPrefix(recipient string) []byte {
	if recipient == "" {
		return []byte(prefixRunning)
	}
	return []byte(prefixRunning + recipient + sep)
}

func runningKey(t *models.Task) []byte {
	return []byte(prefixRunning + t.Recipient + sep + t.ID)
}

func durKey(durationMillis int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixDur, math.MaxInt64-durationMillis, id))
}

func endedKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixEnded, at.UnixNano(), id))
}

// endedSeek returns the first end/ key at or after t.
func endedSeek(t time.Time) []byte {
	if t.IsZero() || t.UnixNano() < 0 {
		return []byte(prefixEnded)
	}
	return []byte(fmt.Sprintf("%s%020d/", prefixEnded, t.UnixNano()))
}

// parseQueuedKey extracts recipient and priority from a q/ key.
func parseQueuedKey(key []byte) (recipient string, priority int, ok bool) {
	rest := bytes.TrimPrefix(key, []byte(prefixQueued))
	i := bytes.IndexByte(rest, sep[0])
	if i < 0 || len(rest) < i+3 {
		return "", 0, false
	}
	p, err := strconv.Atoi(string(rest[i+1 : i+3]))
	if err != nil {
		return "", 0, false
	}
	return string(rest[:i]), p, true
}

// parseDurKey extracts the duration from a dur/ key.
func parseDurKey(key []byte) (int64, bool) {
	rest := bytes.TrimPrefix(key, []byte(prefixDur))
	if len(rest) < 20 {
		return 0, false
	}
	inv, err := strconv.ParseInt(string(rest[:20]), 10, 64)
	if err != nil {
		return 0, false
	}
	return math.MaxInt64 - inv, true
}

// parseEndedKey extracts the end timestamp from an end/ key.
func parseEndedKey(key []byte) (int64, bool) {
	rest := bytes.TrimPrefix(key, []byte(prefixEnded))
	if len(rest) < 20 {
		return 0, false
	}
	ns, err := strconv.ParseInt(string(rest[:20]), 10, 64)
	if err != nil {
		return 0, false
	}
	return ns, true
}
