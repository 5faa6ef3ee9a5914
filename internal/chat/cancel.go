package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CancelStore holds set-once cancellation flags keyed by conversation and
// request. Flags are TTL-bounded so an abandoned request cannot leak a key.
type CancelStore interface {
	RequestCancel(ctx context.Context, conversationID int64, requestID string) error
	Canceled(ctx context.Context, conversationID int64, requestID string) (bool, error)
}

// CancelKey builds the store key for one streaming request.
func CancelKey(conversationID int64, requestID string) string {
	return fmt.Sprintf("chat_cancel:%d:%s", conversationID, requestID)
}

// MemoryCancelStore is an in-process CancelStore for tests and single-node
// deployments without redis.
type MemoryCancelStore struct {
	mu    sync.Mutex
	flags map[string]time.Time
	ttl   time.Duration
}

// NewMemoryCancelStore returns an empty store whose flags expire after ttl.
func NewMemoryCancelStore(ttl time.Duration) *MemoryCancelStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryCancelStore{flags: make(map[string]time.Time), ttl: ttl}
}

func (m *MemoryCancelStore) RequestCancel(_ context.Context, conversationID int64, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := CancelKey(conversationID, requestID)
	if _, ok := m.flags[key]; !ok {
		m.flags[key] = time.Now().Add(m.ttl)
	}
	return nil
}

func (m *MemoryCancelStore) Canceled(_ context.Context, conversationID int64, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := CancelKey(conversationID, requestID)
	expiry, ok := m.flags[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(m.flags, key)
		return false, nil
	}
	return true, nil
}
