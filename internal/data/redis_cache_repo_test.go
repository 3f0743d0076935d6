package data

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipsterhq/tipster-web/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestRedisCacheRepo_Set_Get_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Setup Redis client for testing
	client := setupTestRedis(t)
	defer client.Close()

	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		key := "test:key:1"
		value := []byte("test value")
		ttl := 5 * time.Minute

		// Set value
		err := repo.Set(ctx, key, value, ttl)
		require.NoError(t, err)

		// Get value
		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, value, result)

		// Check TTL is set
		actualTTL := client.TTL(ctx, key).Val()
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("get non-existent key", func(t *testing.T) {
		result, err := repo.Get(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete existing key", func(t *testing.T) {
		key := "test:key:2"
		value := []byte("to be deleted")

		// Set value first
		err := repo.Set(ctx, key, value, time.Minute)
		require.NoError(t, err)

		// Delete it
		deleted, err := repo.Delete(ctx, key)
		require.NoError(t, err)
		assert.True(t, deleted)

		// Verify it's gone
		result, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("delete non-existent key", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, "non:existent:key")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete by prefix", func(t *testing.T) {
		for i := 0; i < 450; i++ {
			require.NoError(t, repo.Set(ctx, fmt.Sprintf("tipster:query:gen:%d", i), []byte("x"), time.Minute))
		}
		require.NoError(t, repo.Set(ctx, "tipster:other", []byte("keep"), time.Minute))

		n, err := repo.DeletePrefix(ctx, "tipster:query:")
		require.NoError(t, err)
		assert.Equal(t, 450, n)

		kept, err := repo.Get(ctx, "tipster:other")
		require.NoError(t, err)
		assert.Equal(t, []byte("keep"), kept)
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, repo.Health(ctx))
	})
}

func TestRedisCacheRepo_Validation(t *testing.T) {
	// Validation runs before any Redis call, so an unreachable client is fine.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	t.Run("empty key validation", func(t *testing.T) {
		require.Error(t, repo.Set(ctx, "", []byte("v"), time.Minute))

		_, err := repo.Get(ctx, "")
		require.Error(t, err)

		_, err = repo.Delete(ctx, "")
		require.Error(t, err)

		_, err = repo.DeletePrefix(ctx, "")
		require.Error(t, err)
	})
}
