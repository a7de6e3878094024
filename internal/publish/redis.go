// internal/publish/redis.go
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-testlab/internal/events"
)

const (
	DefaultStream       = "testlab:events"
	DefaultStreamMaxLen = 10000
	streamWriteTimeout  = 3 * time.Second
)

// streamClient is the part of *redis.Client the stream writer needs.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisStream appends engine events to a Redis stream. Each entry carries
// the event type and its JSON encoding; the stream is trimmed to about
// maxLen entries.
type RedisStream struct {
	client  streamClient
	stream  string
	maxLen  int64
	logger  *zap.Logger
	written atomic.Int64
	failed  atomic.Int64
}

// ConnectRedis opens a client for addr. An unreachable server is logged and
// retried on every write.
func ConnectRedis(ctx context.Context, addr, stream string, maxLen int64, logger *zap.Logger) *RedisStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("redis")

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  streamWriteTimeout,
		WriteTimeout: streamWriteTimeout,
		PoolSize:     4,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Initial Redis connection failed, will retry", zap.String("addr", addr), zap.Error(err))
	} else {
		logger.Info("Connected to Redis", zap.String("addr", addr), zap.String("stream", stream))
	}
	return newRedisStream(rdb, stream, maxLen, logger)
}

func newRedisStream(c streamClient, stream string, maxLen int64, logger *zap.Logger) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStream{client: c, stream: stream, maxLen: maxLen, logger: logger}
}

// Handle implements events.Handler.
func (r *RedisStream) Handle(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		r.failed.Add(1)
		return fmt.Errorf("failed to encode %s event: %w", ev.Type(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type()),
			"data": string(data),
		},
	}).Err()
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Failed to append event to stream",
			zap.String("stream", r.stream),
			zap.String("event_type", string(ev.Type())),
			zap.Error(err))
		return err
	}
	r.written.Add(1)
	return nil
}

// Attach subscribes the stream writer to every event on the bus.
func (r *RedisStream) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.All, r)
}

// Stats returns the number of appended and failed events.
func (r *RedisStream) Stats() (written, failed int64) {
	return r.written.Load(), r.failed.Load()
}

// Close closes the client.
func (r *RedisStream) Close() error {
	return r.client.Close()
}
