package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	cart := &domain.Cart{
		UserID: "user123",
		Lines: []domain.CartLine{
			{ID: "l1", ProductID: "seeds", Quantity: 2},
			{ID: "l2", ProductID: "compost", Quantity: 1},
		},
	}
	data, _ := json.Marshal(cart)
	require.NoError(t, mr.Set(cacheKey("user123"), string(data)))

	got, err := cache.Get(context.Background(), "user123")
	require.NoError(t, err)
	assert.Equal(t, "user123", got.UserID)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "seeds", got.Lines[0].ProductID)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("user123"), `{"UserID":`))

	_, err := cache.Get(context.Background(), "user123")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSet_WithJitteredTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	err := cache.Set(context.Background(), "user789", &domain.Cart{UserID: "user789"}, 0)
	require.NoError(t, err)

	ttl := mr.TTL(cacheKey("user789"))
	assert.GreaterOrEqual(t, ttl, defaultBaseTTL)
	assert.Less(t, ttl, defaultBaseTTL+maxJitter)
}

func TestSet_ExpiresAfterTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user1", &domain.Cart{UserID: "user1"}, 0))
	mr.FastForward(defaultBaseTTL + maxJitter + time.Second)

	_, err := cache.Get(ctx, "user1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user999", &domain.Cart{UserID: "user999"}, 0))
	assert.True(t, mr.Exists(cacheKey("user999")))

	require.NoError(t, cache.Delete(ctx, "user999"))
	assert.False(t, mr.Exists(cacheKey("user999")))

	// missing keys are fine
	assert.NoError(t, cache.Delete(ctx, "user999"))
}

func TestDelete_AdvancesVersion(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, cache.Delete(ctx, "user1"))
	require.NoError(t, cache.Delete(ctx, "user1"))

	v, err = cache.Version(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestSet_SkipsCartLoadedBeforeInvalidation(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	v, err := cache.Version(ctx, "user1")
	require.NoError(t, err)

	// a mutation lands between the reader's load and its Set
	require.NoError(t, cache.Delete(ctx, "user1"))

	err = cache.Set(ctx, "user1", &domain.Cart{UserID: "user1"}, v)
	assert.ErrorIs(t, err, ErrStale)
	assert.False(t, mr.Exists(cacheKey("user1")))

	v, err = cache.Version(ctx, "user1")
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, "user1", &domain.Cart{UserID: "user1"}, v))
	assert.True(t, mr.Exists(cacheKey("user1")))
}
