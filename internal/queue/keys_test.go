// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"bytes"
	"testing"
	"time"

	"github.com/tomtom215/foreman/internal/models"
)

func TestQueuedKeyOrdering(t *testing.T) {
	a := &models.Task{Recipient: "impl", Priority: 2, Seq: 900}
	b := &models.Task{Recipient: "impl", Priority: 10, Seq: 1}
	c := &models.Task{Recipient: "impl", Priority: 2, Seq: 901}

	if bytes.Compare(queuedKey(a), queuedKey(b)) >= 0 {
		t.Error("priority 2 must sort before priority 10")
	}
	if bytes.Compare(queuedKey(a), queuedKey(c)) >= 0 {
		t.Error("lower sequence must sort first within a priority")
	}

	recipient, priority, ok := parseQueuedKey(queuedKey(b))
	if !ok || recipient != "impl" || priority != 10 {
		t.Errorf("parseQueuedKey = %q, %d, %v", recipient, priority, ok)
	}
}

func TestRecipientPrefixIsolation(t *testing.T) {
	other := &models.Task{Recipient: "impl2", Priority: 1, Seq: 1}
	if bytes.HasPrefix(queuedKey(other), queuedPrefix("impl")) {
		t.Error("impl prefix must not match impl2 keys")
	}
	if bytes.HasPrefix(runningKey(&models.Task{Recipient: "impl2", ID: "x"}), runningPrefix("impl")) {
		t.Error("impl running prefix must not match impl2 keys")
	}
}

func TestDurKeyOrdering(t *testing.T) {
	slow := durKey(120000, "a")
	fast := durKey(5000, "b")
	if bytes.Compare(slow, fast) >= 0 {
		t.Error("longer durations must sort first")
	}
	if d, ok := parseDurKey(slow); !ok || d != 120000 {
		t.Errorf("parseDurKey = %d, %v", d, ok)
	}
}

func TestEndedKey(t *testing.T) {
	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	key := endedKey(at, "id")
	ns, ok := parseEndedKey(key)
	if !ok || ns != at.UnixNano() {
		t.Errorf("parseEndedKey = %d, %v", ns, ok)
	}
	if bytes.Compare(endedSeek(at), key) > 0 {
		t.Error("seek key must not sort after a key at the same instant")
	}
	if !bytes.Equal(endedSeek(time.Time{}), []byte(prefixEnded)) {
		t.Error("zero time seeks from the start of the index")
	}
}
