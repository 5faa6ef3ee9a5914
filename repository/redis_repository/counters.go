package redis_repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCounterStore implements the ledger counter store on redis. Counters
// are plain integer keys; the TTL is attached on first touch only so a busy
// day never extends its own window.
type redisCounterStore struct {
	client *redis.Client
}

// NewCounterStore wraps a redis client as a TTL counter store.
func NewCounterStore(client *redis.Client) *redisCounterStore {
	return &redisCounterStore{client: client}
}

func (r *redisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *redisCounterStore) Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
