package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisCandidates(t *testing.T) {
	t.Run("defaults probe CI then local test redis", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "")
		t.Setenv("TEST_REDIS_LOCAL_ADDR", "")

		assert.Equal(t, []string{"redis:6379", "localhost:6379", "localhost:56379"}, RedisCandidates())
	})

	t.Run("REDIS_ADDR is the only candidate", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "cache.internal:6380")

		assert.Equal(t, []string{"cache.internal:6380"}, RedisCandidates())
	})

	t.Run("local address override", func(t *testing.T) {
		t.Setenv("REDIS_ADDR", "")
		t.Setenv("TEST_REDIS_LOCAL_ADDR", "127.0.0.1:7000")

		candidates := RedisCandidates()
		assert.Equal(t, "127.0.0.1:7000", candidates[len(candidates)-1])
	})
}

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.True(t, truthy("TESTUTIL_FLAG"), v)
	}
	for _, v := range []string{"", "0", "false", "no"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.False(t, truthy("TESTUTIL_FLAG"), v)
	}
}

func TestTestTime(t *testing.T) {
	assert.Equal(t, time.UTC, TestTime().Location())
	assert.Equal(t, TestTime(), TestTime())
}
