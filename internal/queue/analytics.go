// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/foreman/internal/models"
)

// Slowest returns Completed tasks ordered by duration, longest first.
func (s *Store) Slowest(ctx context.Context, limit int) ([]models.SlowTask, error) {
	if limit <= 0 {
		limit = 10
	}

	var out []models.SlowTask
	err := s.view(ctx, "slowest", func(txn *badger.Txn) error {
		out = nil
		ids, err := indexValues(txn, []byte(prefixDur), limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			t, err := getTask(txn, id)
			if errors.Is(err, models.ErrTaskNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, slowTaskFrom(t))
		}
		return nil
	})
	return out, err
}

func slowTaskFrom(t *models.Task) models.SlowTask {
	st := models.SlowTask{
		TaskID:    t.ID,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Kind:      t.Kind,
		Priority:  t.Priority,
	}
	if t.DurationMillis != nil {
		st.DurationMillis = *t.DurationMillis
	}
	if t.CompletedAt != nil {
		st.CompletedAt = *t.CompletedAt
	}
	return st
}

// percentileRanks returns the ascending 0-based offsets of p50, p95 and p99
// among n values using the nearest-rank method.
func percentileRanks(n int) [3]int {
	var ranks [3]int
	for i, p := range []float64{50, 95, 99} {
		r := int(math.Ceil(p / 100 * float64(n)))
		if r < 1 {
			r = 1
		}
		ranks[i] = r - 1
	}
	return ranks
}

// Percentiles computes p50/p95/p99 over every retained Completed duration.
// It counts the duration index, then reads the three offsets in one more
// key-only pass; no task bodies are loaded.
func (s *Store) Percentiles(ctx context.Context) (models.Percentiles, error) {
	var result models.Percentiles
	err := s.view(ctx, "percentiles", func(txn *badger.Txn) error {
		result = models.Percentiles{}
		prefix := []byte(prefixDur)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		n := 0
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		it.Close()
		if n == 0 {
			return nil
		}
		result.Count = n

		// The index is slowest first, so ascending offset r is descending offset n-1-r.
		ranks := percentileRanks(n)
		want := map[int][]int{}
		for i, r := range ranks {
			want[n-1-r] = append(want[n-1-r], i)
		}

		values := [3]int64{}
		offset := 0
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if slots, ok := want[offset]; ok {
				d, _ := parseDurKey(it.Item().Key())
				for _, slot := range slots {
					values[slot] = d
				}
			}
			offset++
		}
		result.P50, result.P95, result.P99 = values[0], values[1], values[2]
		return nil
	})
	return result, err
}

// Finished returns Completed and Failed tasks whose EndedAt is at or after since,
// optionally restricted to one recipient.
func (s *Store) Finished(ctx context.Context, agentID string, since time.Time) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.view(ctx, "finished", func(txn *badger.Txn) error {
		tasks = nil
		prefix := []byte(prefixEnded)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(endedSeek(since)); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			t, err := getTask(txn, string(val))
			if errors.Is(err, models.ErrTaskNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if agentID != "" && t.Recipient != agentID {
				continue
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

// CompletedSince returns Completed tasks whose EndedAt is at or after since.
func (s *Store) CompletedSince(ctx context.Context, since time.Time) ([]*models.Task, error) {
	finished, err := s.Finished(ctx, "", since)
	if err != nil {
		return nil, err
	}
	out := finished[:0]
	for _, t := range finished {
		if t.Status == models.TaskCompleted {
			out = append(out, t)
		}
	}
	return out, nil
}

// WindowPercentiles computes p50/p95/p99 of Completed durations for one
// agent ("" for all) over tasks that ended at or after since.
func (s *Store) WindowPercentiles(ctx context.Context, agentID string, since time.Time) (models.Percentiles, error) {
	finished, err := s.Finished(ctx, agentID, since)
	if err != nil {
		return models.Percentiles{}, err
	}
	durations := completedDurations(finished)
	return percentilesOf(durations), nil
}

func completedDurations(tasks []*models.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == models.TaskCompleted && t.DurationMillis != nil {
			out = append(out, *t.DurationMillis)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// percentilesOf expects sorted ascending input.
func percentilesOf(sorted []int64) models.Percentiles {
	if len(sorted) == 0 {
		return models.Percentiles{}
	}
	r := percentileRanks(len(sorted))
	return models.Percentiles{
		Count: len(sorted),
		P50:   sorted[r[0]],
		P95:   sorted[r[1]],
		P99:   sorted[r[2]],
	}
}

// AgentStats aggregates finished tasks per recipient since the given time
// (zero for all retained history), sorted by agent id.
func (s *Store) AgentStats(ctx context.Context, since time.Time) ([]models.AgentStats, error) {
	finished, err := s.Finished(ctx, "", since)
	if err != nil {
		return nil, err
	}

	byAgent := map[string][]*models.Task{}
	for _, t := range finished {
		byAgent[t.Recipient] = append(byAgent[t.Recipient], t)
	}

	out := make([]models.AgentStats, 0, len(byAgent))
	for agent, tasks := range byAgent {
		out = append(out, aggregate(agent, tasks))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// AgentStat aggregates finished tasks for one recipient.
func (s *Store) AgentStat(ctx context.Context, agentID string, since time.Time) (models.AgentStats, error) {
	finished, err := s.Finished(ctx, agentID, since)
	if err != nil {
		return models.AgentStats{}, err
	}
	return aggregate(agentID, finished), nil
}

func aggregate(agentID string, tasks []*models.Task) models.AgentStats {
	st := models.AgentStats{AgentID: agentID}
	durations := completedDurations(tasks)

	for _, t := range tasks {
		if t.Status == models.TaskFailed {
			st.Failed++
		}
	}
	st.Completed = len(durations)
	st.TotalFinished = st.Completed + st.Failed
	if st.TotalFinished > 0 {
		st.FailureRate = float64(st.Failed) / float64(st.TotalFinished)
	}
	if len(durations) == 0 {
		return st
	}

	var sum int64
	for _, d := range durations {
		sum += d
	}
	st.AvgMillis = float64(sum) / float64(len(durations))
	st.MaxMillis = durations[len(durations)-1]
	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		st.MedianMillis = durations[mid]
	} else {
		st.MedianMillis = (durations[mid-1] + durations[mid]) / 2
	}
	return st
}

// QueueDepth counts Queued tasks per agent by priority band. It reads only
// index keys.
func (s *Store) QueueDepth(ctx context.Context) ([]models.QueueDepth, error) {
	var out []models.QueueDepth
	err := s.view(ctx, "queue_depth", func(txn *badger.Txn) error {
		out = nil
		prefix := []byte(prefixQueued)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		byAgent := map[string]*models.QueueDepth{}
		var order []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			agent, priority, ok := parseQueuedKey(it.Item().Key())
			if !ok {
				continue
			}
			d, seen := byAgent[agent]
			if !seen {
				d = &models.QueueDepth{AgentID: agent}
				byAgent[agent] = d
				order = append(order, agent)
			}
			d.Add(priority)
		}

		// Keys are already grouped by agent in lexical order.
		for _, agent := range order {
			out = append(out, *byAgent[agent])
		}
		return nil
	})
	return out, err
}

// QueueDepthFor counts Queued tasks for one agent.
func (s *Store) QueueDepthFor(ctx context.Context, agentID string) (models.QueueDepth, error) {
	depth := models.QueueDepth{AgentID: agentID}
	err := s.view(ctx, "queue_depth", func(txn *badger.Txn) error {
		depth = models.QueueDepth{AgentID: agentID}
		prefix := queuedPrefix(agentID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if _, priority, ok := parseQueuedKey(it.Item().Key()); ok {
				depth.Add(priority)
			}
		}
		return nil
	})
	return depth, err
}
