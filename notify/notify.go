/*
Package notify delivers low-stock notifications raised by stock.Monitor.

PURPOSE:
  The stock core only decides WHEN to notify (severity got worse). This
  package decides WHERE the message goes.

SINKS:
  LogSink:   structured zap warning, always on
  RedisSink: PUBLISH a JSON Event on a channel for downstream consumers
  Fanout:    deliver to several sinks, joining their errors
  Recorder:  in-memory, for tests and local tooling

DELIVERY:
  Best effort. A sink error is reported back on the CommitResult; the
  movement that triggered it is already committed.

SEE ALSO:
  - stock/monitor.go: Severity, ShouldNotify
  - cmd/server/main.go: sink wiring
*/
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

// Event is the payload published for one notification.
type Event struct {
	ItemID   stock.ItemID   `json:"item_id"`
	Severity stock.Severity `json:"severity"`
	Message  string         `json:"message"`
	At       time.Time      `json:"at"`
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink writes each notification as a zap warning.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, itemID stock.ItemID, severity stock.Severity, message string) error {
	s.logger.Warn("stock_low",
		zap.String("item_id", string(itemID)),
		zap.Stringer("severity", severity),
		zap.String("message", message),
	)
	return nil
}

// =============================================================================
// REDIS SINK
// =============================================================================

// Publisher is the subset of *redis.Client used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes notifications as JSON on a Redis channel.
type RedisSink struct {
	client  Publisher
	channel string
	now     func() time.Time
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: channel,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisSink) Notify(ctx context.Context, itemID stock.ItemID, severity stock.Severity, message string) error {
	payload, err := json.Marshal(Event{
		ItemID:   itemID,
		Severity: severity,
		Message:  message,
		At:       s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.channel, err)
	}
	return nil
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout delivers to every sink, even when an earlier one fails.
type Fanout []stock.Notifier

func (f Fanout) Notify(ctx context.Context, itemID stock.ItemID, severity stock.Severity, message string) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, itemID, severity, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every notification in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from every Notify after recording.
	Err error
}

func (r *Recorder) Notify(_ context.Context, itemID stock.ItemID, severity stock.Severity, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{ItemID: itemID, Severity: severity, Message: message, At: time.Now().UTC()})
	return r.Err
}

// Events returns a copy of what has been recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
