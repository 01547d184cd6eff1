package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the Redis-list implementation of Queue. Entries are RPUSHed by
// producers and BLPOPed by workers, so competing workers share the backlog
// without coordination.
type Redis struct {
	name   string
	client *redis.Client
}

// Dial connects to Redis and verifies the connection before returning.
// The returned queue owns the client; Close releases it.
func Dial(ctx context.Context, url, name string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Redis{name: name, client: client}, nil
}

// NewRedis wraps an existing client, used by tests
func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{name: name, client: client}
}

// Name returns the Redis list key backing the queue
func (q *Redis) Name() string { return q.name }

// Append pushes one serialized entry to the tail of the list
func (q *Redis) Append(ctx context.Context, entry []byte) error {
	if err := q.client.RPush(ctx, q.name, entry).Err(); err != nil {
		return fmt.Errorf("append to %s: %w", q.name, err)
	}
	return nil
}

// BlockingPop removes and returns the oldest entry, waiting up to timeout.
// Returns ErrEmpty when the timeout elapses with nothing to consume.
func (q *Redis) BlockingPop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	// BLPOP replies [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("blpop on %s: unexpected reply of %d elements", q.name, len(res))
	}
	return []byte(res[1]), nil
}

// Length returns the approximate backlog size, used only for observability
func (q *Redis) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("llen on %s: %w", q.name, err)
	}
	return n, nil
}

// Ping verifies the connection is alive
func (q *Redis) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (q *Redis) Close() error {
	return q.client.Close()
}
