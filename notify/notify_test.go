package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/stock-ledger/stock"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

func TestLogSink_WritesWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	err := sink.Notify(context.Background(), "item-1", stock.SeverityLow, "Widget stock is low: 4 remaining")
	require.NoError(t, err)

	entries := logs.FilterMessage("stock_low").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "item-1", fields["item_id"])
	assert.Equal(t, "low", fields["severity"])
}

func TestRedisSink_PublishesJSONEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRedisSink(pub, "stock.low")
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return at }

	err := sink.Notify(context.Background(), "item-1", stock.SeverityCritical, "gone")
	require.NoError(t, err)

	assert.Equal(t, "stock.low", pub.channel)
	var ev Event
	require.NoError(t, json.Unmarshal(pub.payload, &ev))
	assert.Equal(t, stock.ItemID("item-1"), ev.ItemID)
	assert.Equal(t, stock.SeverityCritical, ev.Severity)
	assert.Equal(t, "gone", ev.Message)
	assert.True(t, at.Equal(ev.At))
	assert.Contains(t, string(pub.payload), `"severity":"critical"`)
}

func TestRedisSink_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	sink := NewRedisSink(pub, "stock.low")

	err := sink.Notify(context.Background(), "item-1", stock.SeverityLow, "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock.low")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFanout_DeliversToAllAndJoinsErrors(t *testing.T) {
	// GIVEN: a failing sink between two recorders
	first := &Recorder{}
	failing := &Recorder{Err: errors.New("sink down")}
	last := &Recorder{}
	f := Fanout{first, failing, last}

	// WHEN
	err := f.Notify(context.Background(), "item-1", stock.SeverityLimited, "msg")

	// THEN: every sink saw the event, the error surfaces
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Len(t, first.Events(), 1)
	assert.Len(t, failing.Events(), 1)
	assert.Len(t, last.Events(), 1)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, Fanout{}.Notify(context.Background(), "item-1", stock.SeverityLow, "msg"))
}

func TestRedisSink_LiveSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	sub := client.Subscribe(ctx, "stock.low.test")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink := NewRedisSink(client, "stock.low.test")
	require.NoError(t, sink.Notify(ctx, "item-9", stock.SeverityLow, "hello"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, stock.ItemID("item-9"), ev.ItemID)
}
