package redis_repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/repository/redis_repository"
)

func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return config.RedisConfig{Host: host, Port: port.Port(), Timeout: 5 * time.Second}
}

func TestCounterStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	cfg := startRedis(t)

	client, err := redis_repository.Conn(ctx, cfg)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	store := redis_repository.NewCounterStore(client)

	if v, err := store.Get(ctx, "missing"); err != nil || v != 0 {
		t.Fatalf("missing key: %d, %v", v, err)
	}

	if v, err := store.Add(ctx, "calls", 1, time.Hour); err != nil || v != 1 {
		t.Fatalf("first add: %d, %v", v, err)
	}
	if v, err := store.Add(ctx, "calls", 5, time.Hour); err != nil || v != 6 {
		t.Fatalf("second add: %d, %v", v, err)
	}
	if v, err := store.Get(ctx, "calls"); err != nil || v != 6 {
		t.Fatalf("get: %d, %v", v, err)
	}

	ttl, err := client.TTL(ctx, "calls").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestCancelStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	cfg := startRedis(t)

	client, err := redis_repository.Conn(ctx, cfg)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	store := redis_repository.NewCancelStore(client, time.Minute)

	ok, err := store.Canceled(ctx, 7, "req-1")
	if err != nil || ok {
		t.Fatalf("fresh flag: %v, %v", ok, err)
	}
	if err := store.RequestCancel(ctx, 7, "req-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Setting again is a no-op, not an error.
	if err := store.RequestCancel(ctx, 7, "req-1"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	ok, err = store.Canceled(ctx, 7, "req-1")
	if err != nil || !ok {
		t.Fatalf("after cancel: %v, %v", ok, err)
	}
	if ok, _ := store.Canceled(ctx, 7, "req-2"); ok {
		t.Fatal("unrelated request flagged")
	}

	ttl, err := client.TTL(ctx, "chat_cancel:7:req-1").Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("flag must carry a ttl: %v, %v", ttl, err)
	}
}
