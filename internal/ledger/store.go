package ledger

import (
	"context"
	"sync"
	"time"
)

// CounterStore is the TTL-capable integer counter cache both ledgers share.
// Add must be atomic at the store level; the TTL passed on first touch scopes
// the counter to the current day.
type CounterStore interface {
	// Get returns the counter value, 0 when the key is absent or expired.
	Get(ctx context.Context, key string) (int64, error)
	// Add atomically increments the counter by delta and returns the new
	// value, creating it with the given TTL when absent.
	Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// MemoryCounterStore is an in-process CounterStore for tests and single-node
// deployments without redis.
type MemoryCounterStore struct {
	mu    sync.Mutex
	items map[string]memoryCounter
	clock Clock
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryCounterStore returns an empty in-memory store using the given
// clock for expiry decisions.
func NewMemoryCounterStore(clock Clock) *MemoryCounterStore {
	return &MemoryCounterStore{items: make(map[string]memoryCounter), clock: clock}
}

func (m *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok || m.clock.Now().After(it.expiresAt) {
		delete(m.items, key)
		return 0, nil
	}
	return it.value, nil
}

func (m *MemoryCounterStore) Add(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	it, ok := m.items[key]
	if !ok || now.After(it.expiresAt) {
		it = memoryCounter{expiresAt: now.Add(ttl)}
	}
	it.value += delta
	m.items[key] = it
	return it.value, nil
}
