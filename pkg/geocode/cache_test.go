package geocode

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_Normalizes(t *testing.T) {
	a := cacheKey("1 Infinite  Loop")
	b := cacheKey("1 infinite loop")
	c := cacheKey("2 Infinite Loop")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestLookup_CacheHitSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	srv := jsonServer(t, `{"status": "OK", "results": [{"formatted_address": "Main St"}]}`, &hits)

	cache := newMemCache()
	c := newTestClient(srv.URL, WithCache(cache, time.Hour))

	first, err := c.Lookup(context.Background(), "Main St")
	require.NoError(t, err)
	second, err := c.Lookup(context.Background(), "main st")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, cache.sets)
}

func TestLookup_CachesZeroResults(t *testing.T) {
	var hits atomic.Int32
	srv := jsonServer(t, `{"status": "ZERO_RESULTS", "results": []}`, &hits)

	cache := newMemCache()
	c := newTestClient(srv.URL, WithCache(cache, time.Hour))

	for i := 0; i < 3; i++ {
		resp, err := c.Lookup(context.Background(), "nowhere")
		require.NoError(t, err)
		assert.Equal(t, StatusZeroResults, resp.Status)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestLookup_DoesNotCacheInvalidRequest(t *testing.T) {
	var hits atomic.Int32
	srv := jsonServer(t, `{"status": "INVALID_REQUEST", "results": []}`, &hits)

	cache := newMemCache()
	c := newTestClient(srv.URL, WithCache(cache, time.Hour))

	_, err := c.Lookup(context.Background(), "bad")
	require.NoError(t, err)
	_, err = c.Lookup(context.Background(), "bad")
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	assert.Zero(t, cache.sets)
}

func TestLookup_UnreachableRedisFallsThrough(t *testing.T) {
	srv := jsonServer(t, `{"status": "OK", "results": [{"formatted_address": "Main St"}]}`, nil)

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close() //nolint:errcheck

	c := newTestClient(srv.URL, WithCache(NewRedisCache(rdb, "test:"), time.Hour))
	resp, err := c.Lookup(context.Background(), "Main St")
	require.NoError(t, err)

	addr, ok := resp.Address()
	assert.True(t, ok)
	assert.Equal(t, "Main St", addr)
}

func TestNewRedisCacheFromURL(t *testing.T) {
	cache, rdb, err := NewRedisCacheFromURL("redis://localhost:6379/2")
	require.NoError(t, err)
	defer rdb.Close() //nolint:errcheck

	assert.Equal(t, "geocode:", cache.prefix)
	assert.Equal(t, 2, rdb.Options().DB)

	_, _, err = NewRedisCacheFromURL("http://not-redis")
	assert.Error(t, err)
}
