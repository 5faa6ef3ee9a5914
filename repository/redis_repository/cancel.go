package redis_repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakchai-t/doclens/internal/chat"
)

// redisCancelStore implements the chat cancel store on redis. Flags are
// set-once via SETNX and expire on their own, so an abandoned request never
// leaks a key.
type redisCancelStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCancelStore wraps a redis client as a cancellation flag store.
func NewCancelStore(client *redis.Client, ttl time.Duration) *redisCancelStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisCancelStore{client: client, ttl: ttl}
}

func (r *redisCancelStore) RequestCancel(ctx context.Context, conversationID int64, requestID string) error {
	return r.client.SetNX(ctx, chat.CancelKey(conversationID, requestID), "1", r.ttl).Err()
}

func (r *redisCancelStore) Canceled(ctx context.Context, conversationID int64, requestID string) (bool, error) {
	n, err := r.client.Exists(ctx, chat.CancelKey(conversationID, requestID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
