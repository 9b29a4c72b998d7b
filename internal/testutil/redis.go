package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisProbeTimeout = 2 * time.Second

// redisCandidates lists the addresses probed for a test Redis, in order.
// REDIS_ADDR pins a single address.
func redisCandidates() []string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return []string{addr}
	}
	return []string{"redis:6379", "localhost:6379", "localhost:56379"}
}

func pingRedis(addr string, db int) error {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// GetTestRedisAddr returns the first reachable candidate address.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()
	for _, addr := range redisCandidates() {
		err := pingRedis(addr, 0)
		if err == nil {
			return addr, true
		}
		t.Logf("Redis not available at %s: %v", addr, err)
	}
	return "", false
}

// reserveRedisDB claims a DB index in [1..15] with a lock key in DB 0 so
// concurrently running packages never flush each other's sessions.
// TEST_REDIS_DB skips the reservation.
func reserveRedisDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, reserving one instead", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = meta.Close() }()

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := 1; db <= 15; db++ {
		key := fmt.Sprintf("cqrs-monitor:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		releaseOnCleanup(t, addr, key)
		return db
	}

	t.Logf("No free Redis DB at %s; sharing DB 1", addr)
	return 1
}

func releaseOnCleanup(t TestingTB, addr, key string) {
	tc, ok := any(t).(interface{ Cleanup(func()) })
	if !ok {
		return
	}
	tc.Cleanup(func() {
		c := redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = c.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		defer cancel()
		if err := c.Del(ctx, key).Err(); err != nil {
			t.Logf("warning: failed to release redis db lock %s: %v", key, err)
		}
	})
}

// SetupTestRedis returns a client on a reserved, flushed DB. The test is
// skipped when Redis is unreachable unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		if requireRedis() {
			t.Fatal("Redis not available for testing")
		}
		t.Skip("Redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		if requireRedis() {
			t.Fatalf("flush test redis at %s: %v", addr, err)
		}
		t.Skipf("flush test redis at %s: %v", addr, err)
	}
	return client
}
