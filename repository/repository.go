// Package repository selects counter and cancellation stores by backend.
// Redis is the production backend; the in-memory implementations cover
// single-node runs and tests.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/internal/chat"
	"github.com/sakchai-t/doclens/internal/ledger"
	"github.com/sakchai-t/doclens/repository/redis_repository"
)

type RepoType string

const (
	RepoTypeRedis  RepoType = "redis"
	RepoTypeMemory RepoType = "memory"
)

// Stores bundles the volatile-state stores the service needs.
type Stores struct {
	Counters ledger.CounterStore
	Cancels  chat.CancelStore
}

// NewStores builds the counter and cancel stores for the chosen backend.
func NewStores(ctx context.Context, t RepoType, cfg config.RedisConfig, clock ledger.Clock, cancelTTL time.Duration) (Stores, error) {
	switch t {
	case RepoTypeRedis:
		client, err := redis_repository.Conn(ctx, cfg)
		if err != nil {
			return Stores{}, err
		}
		return Stores{
			Counters: redis_repository.NewCounterStore(client),
			Cancels:  redis_repository.NewCancelStore(client, cancelTTL),
		}, nil
	case RepoTypeMemory:
		return Stores{
			Counters: ledger.NewMemoryCounterStore(clock),
			Cancels:  chat.NewMemoryCancelStore(cancelTTL),
		}, nil
	}
	return Stores{}, fmt.Errorf("invalid repository type: %s", t)
}
