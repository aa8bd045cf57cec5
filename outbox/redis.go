package outbox

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisPublisher appends change messages to a Redis stream.
type RedisPublisher struct {
	rdb    *goredis.Client
	stream string
}

// NewRedisPublisher connects and pings before returning.
func NewRedisPublisher(ctx context.Context, addr, stream string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("outbox: missing redis addr")
	}
	if stream == "" {
		return nil, fmt.Errorf("outbox: missing redis stream")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("outbox: redis ping: %w", err)
	}

	return &RedisPublisher{rdb: rdb, stream: stream}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, m Message) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("outbox: redis publisher not initialized")
	}
	err := p.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":      m.ID,
			"topic":   m.Topic,
			"payload": string(m.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("outbox: xadd: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
