// Package testutil provides testing utilities and helpers for tipster-web packages.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisProbeTimeout = 2 * time.Second
	redisLockTTL      = 30 * time.Minute
	// DB 0 holds the reservation locks and is never handed to a test.
	firstTestDB = 1
	lastTestDB  = 15
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func truthy(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// mustHaveRedis turns a missing Redis into a failure instead of a skip (CI).
func mustHaveRedis() bool { return truthy("TEST_REQUIRE_REDIS") || truthy("TEST_REQUIRE_INFRA") }

// RedisCandidates lists the addresses probed for a test Redis, in order.
// REDIS_ADDR, when set, is the only candidate.
func RedisCandidates() []string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return []string{addr}
	}
	local := os.Getenv("TEST_REDIS_LOCAL_ADDR")
	if local == "" {
		local = "localhost:56379"
	}
	return []string{"redis:6379", "localhost:6379", local}
}

// GetTestRedisAddr returns the first reachable candidate. When none answers it returns
// the last candidate and false.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()

	candidates := RedisCandidates()
	for _, addr := range candidates {
		err := ping(addr, 0)
		if err == nil {
			return addr, true
		}
		t.Logf("Redis not available at %s: %v", addr, err)
	}
	return candidates[len(candidates)-1], false
}

func ping(addr string, db int) error {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// reserveDB picks the database a test package flushes freely. TEST_REDIS_DB wins;
// otherwise the first DB whose lock key in DB 0 can be taken, falling back to DB 1.
func reserveDB(t TestingTB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil && db >= 0 {
			return db
		}
		t.Logf("Invalid TEST_REDIS_DB=%q, falling back to auto-select", v)
	}

	locks := redis.NewClient(&redis.Options{Addr: addr})
	defer locks.Close()

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for db := firstTestDB; db <= lastTestDB; db++ {
		key := fmt.Sprintf("tipster:testutil:db_lock:%d", db)
		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		won, err := locks.SetNX(ctx, key, owner, redisLockTTL).Result()
		cancel()
		if err != nil || !won {
			continue
		}
		releaseOnCleanup(t, addr, key)
		t.Logf("Using Redis DB=%d for tests at %s", db, addr)
		return db
	}

	t.Logf("Falling back to Redis DB=%d for tests at %s", firstTestDB, addr)
	return firstTestDB
}

func releaseOnCleanup(t TestingTB, addr, key string) {
	c, ok := any(t).(interface{ Cleanup(func()) })
	if !ok {
		return
	}
	c.Cleanup(func() {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
		defer cancel()
		if err := client.Del(ctx, key).Err(); err != nil {
			t.Logf("warning: failed to release redis db lock %s: %v", key, err)
		}
	})
}

// SetupTestRedis returns a client on an empty, reserved database. The test is skipped
// when no Redis is reachable unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		if mustHaveRedis() {
			t.Fatal("Redis not available for testing")
		}
		t.Skip("Redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveDB(t, addr)})

	ctx, cancel := context.WithTimeout(context.Background(), redisProbeTimeout)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		if mustHaveRedis() {
			t.Fatalf("Redis not usable for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not usable for testing at %s: %v", addr, err)
	}
	return client
}
