package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"docpulse/internal/analytics"
)

// RedisOptions configures a RedisBus.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisBus fans change events out through Redis pub/sub so that every
// server instance sees changes detected by any watcher.
type RedisBus struct {
	logger *slog.Logger
	rdb    *goredis.Client
	prefix string
}

var (
	_ analytics.Notifier  = (*RedisBus)(nil)
	_ analytics.Publisher = (*RedisBus)(nil)
)

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(opts RedisOptions, logger *slog.Logger) (*RedisBus, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis change bus initialized", slog.String("addr", opts.Addr))

	return NewRedisBusWithClient(rdb, opts.Prefix, logger), nil
}

// NewRedisBusWithClient wraps an existing client.
func NewRedisBusWithClient(rdb *goredis.Client, prefix string, logger *slog.Logger) *RedisBus {
	if prefix == "" {
		prefix = "docpulse"
	}
	return &RedisBus{
		logger: logger.With(slog.String("service", "RedisChangeBus")),
		rdb:    rdb,
		prefix: prefix,
	}
}

// ChannelName returns the Redis channel carrying events for (doc, ch).
func ChannelName(prefix string, doc analytics.DocumentID, ch analytics.Channel) string {
	return fmt.Sprintf("%s:%s:%s", prefix, ch, doc)
}

// Publish sends event to the Redis channel of its topic.
func (b *RedisBus) Publish(ctx context.Context, event analytics.ChangeEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return b.rdb.Publish(ctx, ChannelName(b.prefix, event.DocumentID, event.Channel), raw).Err()
}

// Subscribe listens on the Redis channel for (doc, ch) until the returned
// subscription is released.
func (b *RedisBus) Subscribe(ctx context.Context, doc analytics.DocumentID, ch analytics.Channel, fn func(analytics.ChangeEvent)) (analytics.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("change handler required")
	}

	name := ChannelName(b.prefix, doc, ch)
	pubsub := b.rdb.Subscribe(ctx, name)

	// ensures subscription actually started
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", name, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case m, ok := <-msgs:
				if !ok || m == nil {
					return
				}
				var event analytics.ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.logger.Warn("Bad change event payload",
						slog.String("channel", name),
						slog.Any("error", err))
					continue
				}
				fn(event)
			}
		}
	}()

	return sub, nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

type redisSubscription struct {
	pubsub *goredis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}
