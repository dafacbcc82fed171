// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/foreman/internal/logging"
	"github.com/tomtom215/foreman/internal/metrics"
	"github.com/tomtom215/foreman/internal/models"
)

// Topic is the in-process topic every emitted alert is published on.
const Topic = "foreman.alerts"

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("alert emitter closed")

// EmitterConfig holds delivery settings for an Emitter.
type EmitterConfig struct {
	// RepeatInterval is the minimum gap between two emissions of the same
	// warning or critical alert key. Zero disables throttling.
	RepeatInterval time.Duration

	// RingSize bounds the recent-alert history served by Recent.
	RingSize int

	// OutputBuffer is the per-subscriber channel buffer.
	OutputBuffer int64
}

// DefaultEmitterConfig returns the delivery defaults.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		RepeatInterval: 5 * time.Minute,
		RingSize:       200,
		OutputBuffer:   64,
	}
}

// Emitter logs, counts, records and publishes alerts.
type Emitter struct {
	config EmitterConfig
	pubSub *gochannel.GoChannel
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ring     []models.Alert
	next     int
	filled   bool
	closed   bool
}

// NewEmitter creates an Emitter backed by a watermill gochannel. A nil
// logger routes watermill's own logs through the global zerolog logger.
func NewEmitter(cfg EmitterConfig, logger watermill.LoggerAdapter) *Emitter {
	defaults := DefaultEmitterConfig()
	if cfg.RingSize <= 0 {
		cfg.RingSize = defaults.RingSize
	}
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = defaults.OutputBuffer
	}
	if logger == nil {
		logger = watermill.NewSlogLogger(logging.NewSlogLogger())
	}

	return &Emitter{
		config: cfg,
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, logger),
		logger:   logging.WithComponent("alerting"),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		ring:     make([]models.Alert, cfg.RingSize),
	}
}

// Emit delivers alert unless an identical warning or critical alert was
// emitted within the repeat interval. It fills in ID and CreatedAt when they
// are empty and reports whether the alert was delivered.
func (e *Emitter) Emit(ctx context.Context, alert models.Alert) bool {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = e.now().UTC()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if !e.allowLocked(alert) {
		e.mu.Unlock()
		metrics.RecordAlertSuppressed(alert.Kind)
		logging.Ctx(ctx).Debug().
			Str("kind", string(alert.Kind)).
			Str("agent_id", alert.AgentID).
			Msg("Repeated alert suppressed")
		return false
	}
	e.ring[e.next] = alert
	e.next = (e.next + 1) % len(e.ring)
	if e.next == 0 {
		e.filled = true
	}
	e.mu.Unlock()

	e.log(ctx, alert)
	metrics.RecordAlert(alert.Kind, alert.Severity)
	e.publish(alert)
	return true
}

// allowLocked applies the per-key limiter. Fatal alerts always pass.
func (e *Emitter) allowLocked(alert models.Alert) bool {
	if alert.Severity == models.SeverityFatal || e.config.RepeatInterval <= 0 {
		return true
	}
	key := alert.Key()
	lim, ok := e.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(e.config.RepeatInterval), 1)
		e.limiters[key] = lim
	}
	return lim.AllowN(e.now(), 1)
}

func (e *Emitter) log(ctx context.Context, alert models.Alert) {
	logger := logging.Ctx(ctx)
	event := logger.Warn()
	if alert.Severity != models.SeverityWarning {
		event = logger.Error()
	}
	event = event.
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity))
	if alert.AgentID != "" {
		event = event.Str("agent_id", alert.AgentID)
	}
	if alert.TaskID != "" {
		event = event.Str("task_id", alert.TaskID)
	}
	if alert.Threshold != 0 {
		event = event.Float64("value", alert.Value).Float64("threshold", alert.Threshold)
	}
	event.Msg(alert.Message)
}

func (e *Emitter) publish(alert models.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to encode alert")
		return
	}
	msg := message.NewMessage(alert.ID, payload)
	msg.Metadata.Set("kind", string(alert.Kind))
	msg.Metadata.Set("severity", string(alert.Severity))
	if err := e.pubSub.Publish(Topic, msg); err != nil {
		e.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Failed to publish alert")
	}
}

// Recent returns up to limit emitted alerts, newest first. A limit of zero
// or less returns the whole ring.
func (e *Emitter) Recent(limit int) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.next
	if e.filled {
		n = len(e.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Alert, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (e.next - i + len(e.ring)) % len(e.ring)
		out = append(out, e.ring[idx])
	}
	return out
}

// Subscribe streams alerts emitted after the call until ctx is done or the
// emitter is closed. Each delivered alert is acknowledged.
func (e *Emitter) Subscribe(ctx context.Context) (<-chan models.Alert, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	messages, err := e.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan models.Alert, e.config.OutputBuffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var alert models.Alert
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				e.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping undecodable alert")
				msg.Ack()
				continue
			}
			select {
			case out <- alert:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close stops delivery and closes every subscription.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.pubSub.Close()
}
