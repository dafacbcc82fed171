// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/models"
	"github.com/tomtom215/foreman/internal/validation"
)

// sequenceBandwidth is how many sequence numbers Badger leases at a time.
const sequenceBandwidth = 128

// cleanupBatch bounds deletions per transaction to stay under Badger's txn size limit.
const cleanupBatch = 1000

// Store is the durable task table and priority queue.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	config Config

	// now is the clock; tests replace it.
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the task store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open task sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Task store opened")

	return &Store{
		db:     db,
		seq:    seq,
		config: cfg,
		now:    time.Now,
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.config
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.ErrStoreClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflict.
// fn may run more than once and must reset anything it captures.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { RecordStoreLatency(op, time.Since(start).Seconds()) }()

	var err error
	for attempt := 0; attempt <= s.config.ConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		RecordConflict(op)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return s.classify(op, err)
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { RecordStoreLatency(op, time.Since(start).Seconds()) }()

	return s.classify(op, s.db.View(fn))
}

// classify passes caller errors through and wraps everything else as
// StoreUnavailableError so the coordination loop can count it.
func (s *Store) classify(op string, err error) error {
	if err == nil || isCallerError(err) {
		return err
	}
	RecordStoreError(op)
	return &models.StoreUnavailableError{Op: op, Err: err}
}

func isCallerError(err error) bool {
	return errors.Is(err, models.ErrTaskNotFound) ||
		errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, models.ErrInvalidArgument) ||
		errors.Is(err, models.ErrStoreClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func getTask(txn *badger.Txn, id string) (*models.Task, error) {
	item, err := txn.Get(taskKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t models.Task
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func putTask(txn *badger.Txn, t *models.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := txn.Set(taskKey(t.ID), data); err != nil {
		return fmt.Errorf("set task: %w", err)
	}
	return nil
}

func insertQueued(txn *badger.Txn, t *models.Task) error {
	if err := putTask(txn, t); err != nil {
		return err
	}
	if err := txn.Set(queuedKey(t), []byte(t.ID)); err != nil {
		return fmt.Errorf("set queued index: %w", err)
	}
	return nil
}

// nextSeq returns the next arrival number.
func (s *Store) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, s.classify("sequence", fmt.Errorf("next sequence: %w", err))
	}
	return n, nil
}

// Enqueue persists a new Queued task and returns its id.
func (s *Store) Enqueue(ctx context.Context, req *models.EnqueueRequest) (string, error) {
	if verr := validation.ValidateStruct(req); verr != nil {
		return "", fmt.Errorf("%w: %w", models.ErrInvalidArgument, verr)
	}
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	seq, err := s.nextSeq()
	if err != nil {
		return "", err
	}

	t := &models.Task{
		ID:        uuid.NewString(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Kind:      req.Kind,
		Priority:  req.Priority,
		Payload:   req.Payload,
		Status:    models.TaskQueued,
		Attempt:   1,
		Seq:       seq,
		CreatedAt: s.now().UTC(),
	}

	if err := s.update(ctx, "enqueue", func(txn *badger.Txn) error {
		return insertQueued(txn, t)
	}); err != nil {
		return "", err
	}

	RecordEnqueued(t.Recipient)
	logging.Debug().
		Str("task_id", t.ID).
		Str("sender", t.Sender).
		Str("recipient", t.Recipient).
		Str("kind", t.Kind).
		Int("priority", t.Priority).
		Msg("Task enqueued")
	return t.ID, nil
}

// Get returns one task by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Task, error) {
	var t *models.Task
	err := s.view(ctx, "get", func(txn *badger.Txn) error {
		var err error
		t, err = getTask(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Dequeue claims the next Queued task for agentID: lowest priority value
// first, then arrival order. It returns (nil, nil) when nothing is queued.
// The claim moves the task to Running in the same transaction that reads it.
func (s *Store) Dequeue(ctx context.Context, agentID, owner string) (*models.Task, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: empty agent id", models.ErrInvalidArgument)
	}

	var claimed *models.Task
	err := s.update(ctx, "dequeue", func(txn *badger.Txn) error {
		claimed = nil
		for {
			qkey, id, err := firstQueued(txn, agentID)
			if err != nil || qkey == nil {
				return err
			}

			t, err := getTask(txn, id)
			if errors.Is(err, models.ErrTaskNotFound) || (err == nil && t.Status != models.TaskQueued) {
				// Index entry without a queued task behind it; drop it and look again.
				logging.Warn().Str("task_id", id).Msg("Dropping stale queue index entry")
				if err := txn.Delete(qkey); err != nil {
					return fmt.Errorf("delete stale index: %w", err)
				}
				continue
			}
			if err != nil {
				return err
			}

			now := s.now().UTC()
			t.Status = models.TaskRunning
			t.StartedAt = &now
			t.Owner = owner
			if err := txn.Delete(qkey); err != nil {
				return fmt.Errorf("delete queued index: %w", err)
			}
			if err := txn.Set(runningKey(t), []byte(t.ID)); err != nil {
				return fmt.Errorf("set running index: %w", err)
			}
			if err := putTask(txn, t); err != nil {
				return err
			}
			claimed = t
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	if claimed != nil {
		RecordDequeued(agentID)
		logging.Debug().
			Str("task_id", claimed.ID).
			Str("agent_id", agentID).
			Int("priority", claimed.Priority).
			Msg("Task dequeued")
	}
	return claimed, nil
}

// firstQueued returns the first q/ index entry for recipient, or a nil key.
func firstQueued(txn *badger.Txn, recipient string) ([]byte, string, error) {
	prefix := queuedPrefix(recipient)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	if !it.ValidForPrefix(prefix) {
		return nil, "", nil
	}
	item := it.Item()
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, "", fmt.Errorf("read queued index: %w", err)
	}
	return item.KeyCopy(nil), string(val), nil
}

// MarkStarted claims a specific Queued task by id (Queued -> Running).
func (s *Store) MarkStarted(ctx context.Context, id, owner string) (*models.Task, error) {
	var started *models.Task
	err := s.update(ctx, "mark_started", func(txn *badger.Txn) error {
		started = nil
		t, err := getTask(txn, id)
		if err != nil {
			return err
		}
		if !t.Status.CanTransition(models.TaskRunning) {
			return &models.InvalidTransitionError{TaskID: id, From: t.Status, To: models.TaskRunning}
		}

		now := s.now().UTC()
		if err := txn.Delete(queuedKey(t)); err != nil {
			return fmt.Errorf("delete queued index: %w", err)
		}
		t.Status = models.TaskRunning
		t.StartedAt = &now
		t.Owner = owner
		if err := txn.Set(runningKey(t), []byte(t.ID)); err != nil {
			return fmt.Errorf("set running index: %w", err)
		}
		if err := putTask(txn, t); err != nil {
			return err
		}
		started = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordDequeued(started.Recipient)
	logging.Debug().Str("task_id", id).Str("owner", owner).Msg("Task started")
	return started, nil
}

// completionSkew is how far a reported duration may exceed the wall-clock
// time since StartedAt.
const completionSkew = time.Second

// MarkCompleted moves a Running task to Completed.
//
// A positive durationMillis is authoritative and CompletedAt is derived from
// it; zero means "measure it", using the wall clock since StartedAt. A
// duration longer than the time since StartedAt (plus completionSkew) is
// rejected. A task that is no longer Running is rejected, so a duration is
// recorded once. The ended index always uses the wall-clock completion time.
func (s *Store) MarkCompleted(ctx context.Context, id string, durationMillis int64) (*models.Task, error) {
	if durationMillis < 0 {
		return nil, fmt.Errorf("%w: negative duration %d", models.ErrInvalidArgument, durationMillis)
	}

	var done *models.Task
	err := s.update(ctx, "mark_completed", func(txn *badger.Txn) error {
		done = nil
		t, err := getTask(txn, id)
		if err != nil {
			return err
		}
		if !t.Status.CanTransition(models.TaskCompleted) {
			return &models.InvalidTransitionError{TaskID: id, From: t.Status, To: models.TaskCompleted}
		}

		now := s.now().UTC()
		started := now
		if t.StartedAt != nil {
			started = *t.StartedAt
		}
		elapsed := now.Sub(started).Milliseconds()
		if elapsed < 0 {
			elapsed = 0
		}
		d := durationMillis
		if d == 0 {
			d = elapsed
		} else if d > elapsed+completionSkew.Milliseconds() {
			return fmt.Errorf("%w: duration %dms exceeds the %dms since task %s started",
				models.ErrInvalidArgument, d, elapsed, id)
		}
		completedAt := started.Add(time.Duration(d) * time.Millisecond)

		t.Status = models.TaskCompleted
		t.StartedAt = &started
		t.CompletedAt = &completedAt
		t.DurationMillis = &d
		if err := finish(txn, t, now); err != nil {
			return err
		}
		if err := txn.Set(durKey(d, t.ID), []byte(t.ID)); err != nil {
			return fmt.Errorf("set duration index: %w", err)
		}
		done = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordCompleted(done.Recipient, *done.DurationMillis)
	logging.Debug().
		Str("task_id", id).
		Str("agent_id", done.Recipient).
		Int64("duration_ms", *done.DurationMillis).
		Msg("Task completed")
	return done, nil
}

// MarkFailed moves a Running task to Failed with the given message.
// Failed tasks are never retried automatically; see RecoverOrphans for the
// one exception.
func (s *Store) MarkFailed(ctx context.Context, id, errorMessage string) (*models.Task, error) {
	var failed *models.Task
	err := s.update(ctx, "mark_failed", func(txn *badger.Txn) error {
		failed = nil
		t, err := getTask(txn, id)
		if err != nil {
			return err
		}
		if err := failTask(txn, t, errorMessage, s.now().UTC()); err != nil {
			return err
		}
		failed = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	RecordFailed(failed.Recipient)
	logging.Debug().
		Str("task_id", id).
		Str("agent_id", failed.Recipient).
		Str("error", errorMessage).
		Msg("Task failed")
	return failed, nil
}

func failTask(txn *badger.Txn, t *models.Task, errorMessage string, now time.Time) error {
	if !t.Status.CanTransition(models.TaskFailed) {
		return &models.InvalidTransitionError{TaskID: t.ID, From: t.Status, To: models.TaskFailed}
	}
	t.Status = models.TaskFailed
	t.CompletedAt = &now
	t.ErrorMessage = errorMessage
	return finish(txn, t, now)
}

// finish writes a terminal task and moves it from the running to the ended
// index, keyed on endedAt.
func finish(txn *badger.Txn, t *models.Task, endedAt time.Time) error {
	t.EndedAt = &endedAt
	if err := txn.Delete(runningKey(t)); err != nil {
		return fmt.Errorf("delete running index: %w", err)
	}
	if err := txn.Set(endedKey(endedAt, t.ID), []byte(t.ID)); err != nil {
		return fmt.Errorf("set ended index: %w", err)
	}
	return putTask(txn, t)
}

// ListRunning returns Running tasks addressed to agentID, or all of them when agentID is "".
func (s *Store) ListRunning(ctx context.Context, agentID string) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.view(ctx, "list_running", func(txn *badger.Txn) error {
		tasks = nil
		ids, err := indexValues(txn, runningPrefix(agentID), 0)
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
			tasks = append(tasks, t)
		}
		return nil
	})
	return tasks, err
}

// indexValues reads the values (task ids) under prefix, up to limit (0 = all).
func indexValues(txn *badger.Txn, prefix []byte, limit int) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		ids = append(ids, string(val))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// OrphanReport lists what RecoverOrphans changed.
type OrphanReport struct {
	// Failed holds the ids of tasks moved from Running to Failed.
	Failed []string `json:"failed"`
	// Retried holds the ids of the replacement tasks that were enqueued.
	Retried []string `json:"retried"`
}

// RecoverOrphans fails Running tasks addressed to agentID ("" for all agents)
// that have been Running for at least minAge, recording reason as the error.
// Each failed task whose attempt count is below MaxTaskAttempts is replaced
// by a new Queued task with Attempt+1 and RetryOf set to the old id.
func (s *Store) RecoverOrphans(ctx context.Context, agentID string, minAge time.Duration, reason string) (OrphanReport, error) {
	var report OrphanReport

	running, err := s.ListRunning(ctx, agentID)
	if err != nil {
		return report, err
	}

	now := s.now().UTC()
	for _, candidate := range running {
		if candidate.StartedAt != nil && now.Sub(*candidate.StartedAt) < minAge {
			continue
		}

		var retrySeq uint64
		wantRetry := candidate.Attempt < s.config.MaxTaskAttempts
		if wantRetry {
			if retrySeq, err = s.nextSeq(); err != nil {
				return report, err
			}
		}

		var failedID, retryID string
		err := s.update(ctx, "recover_orphan", func(txn *badger.Txn) error {
			failedID, retryID = "", ""
			t, err := getTask(txn, candidate.ID)
			if err != nil {
				return err
			}
			if t.Status != models.TaskRunning {
				// Finished between the scan and this transaction.
				return nil
			}
			if err := failTask(txn, t, reason, now); err != nil {
				return err
			}
			failedID = t.ID

			if !wantRetry {
				return nil
			}
			retry := &models.Task{
				ID:        uuid.NewString(),
				Sender:    t.Sender,
				Recipient: t.Recipient,
				Kind:      t.Kind,
				Priority:  t.Priority,
				Payload:   t.Payload,
				Status:    models.TaskQueued,
				Attempt:   t.Attempt + 1,
				RetryOf:   t.ID,
				Seq:       retrySeq,
				CreatedAt: now,
			}
			if err := insertQueued(txn, retry); err != nil {
				return err
			}
			retryID = retry.ID
			return nil
		})
		if errors.Is(err, models.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return report, err
		}
		if failedID == "" {
			continue
		}

		report.Failed = append(report.Failed, failedID)
		RecordOrphaned(candidate.Recipient)
		RecordFailed(candidate.Recipient)
		logEvent := logging.Warn().
			Str("task_id", failedID).
			Str("agent_id", candidate.Recipient).
			Int("attempt", candidate.Attempt).
			Str("reason", reason)
		if retryID != "" {
			report.Retried = append(report.Retried, retryID)
			RecordEnqueued(candidate.Recipient)
			logEvent = logEvent.Str("retry_task_id", retryID)
		}
		logEvent.Msg("Orphaned task failed")
	}

	return report, nil
}

// Cleanup deletes Completed and Failed tasks that ended more than
// olderThanDays ago and returns how many were removed. Queued and Running
// tasks are never touched.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("%w: negative retention %d", models.ErrInvalidArgument, olderThanDays)
	}
	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour).UnixNano()

	total := 0
	for {
		removed := 0
		err := s.update(ctx, "cleanup", func(txn *badger.Txn) error {
			removed = 0
			keys, ids, err := expiredEnded(txn, cutoff, cleanupBatch)
			if err != nil {
				return err
			}
			for i, key := range keys {
				t, err := getTask(txn, ids[i])
				if err == nil {
					if t.DurationMillis != nil && t.Status == models.TaskCompleted {
						if err := txn.Delete(durKey(*t.DurationMillis, t.ID)); err != nil {
							return fmt.Errorf("delete duration index: %w", err)
						}
					}
					if err := txn.Delete(taskKey(t.ID)); err != nil {
						return fmt.Errorf("delete task: %w", err)
					}
				} else if !errors.Is(err, models.ErrTaskNotFound) {
					return err
				}
				if err := txn.Delete(key); err != nil {
					return fmt.Errorf("delete ended index: %w", err)
				}
				removed++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += removed
		if removed < cleanupBatch {
			break
		}
	}

	if total > 0 {
		RecordCleanupRemoved(total)
		if err := s.RunGC(); err != nil {
			logging.Warn().Err(err).Msg("Task store GC after cleanup failed")
		}
	}
	logging.Info().Int("removed", total).Int("older_than_days", olderThanDays).Msg("Task retention pass complete")
	return total, nil
}

// expiredEnded returns up to limit end/ keys older than cutoff with their task ids.
func expiredEnded(txn *badger.Txn, cutoff int64, limit int) ([][]byte, []string, error) {
	prefix := []byte(prefixEnded)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < limit; it.Next() {
		item := it.Item()
		ns, ok := parseEndedKey(item.Key())
		if !ok {
			continue
		}
		if ns >= cutoff {
			break
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, fmt.Errorf("read ended index: %w", err)
		}
		keys = append(keys, item.KeyCopy(nil))
		ids = append(ids, string(val))
	}
	return keys, ids, nil
}

// RunGC runs Badger value log garbage collection until nothing is rewritten.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.config.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close releases the sequence and closes Badger, bounded by CloseTimeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Release task sequence failed")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Task store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
