package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, prefix string) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisClient(&redis.Options{Addr: mr.Addr()}, prefix, time.Hour)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisClientKeyPrefix(t *testing.T) {
	c := NewRedisClient(&redis.Options{Addr: "127.0.0.1:1"}, "checkweb:", time.Minute)
	defer c.Close()

	assert.Equal(t, "checkweb:urn:iauthsession:abc", c.key("urn:iauthsession:abc"))
	stats := c.Stats()
	assert.Equal(t, "redis", stats.Provider)
	assert.Equal(t, int64(-1), stats.Entries)
}

func TestRedisClientSetGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "checkweb:")

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "a", item{Name: "alpha", Count: 1}, time.Minute))

	assert.True(t, mr.Exists("checkweb:a"), "keys are stored under the prefix")
	assert.False(t, mr.Exists("a"))
	assert.Equal(t, time.Minute, mr.TTL("checkweb:a"))

	var got item
	found, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, item{Name: "alpha", Count: 1}, got)

	found, err = c.Get(ctx, "missing", &got)
	require.NoError(t, err, "redis.Nil is a miss, not an error")
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// ttl <= 0 falls back to the client default
	require.NoError(t, c.Set(ctx, "b", item{Name: "beta"}, 0))
	assert.Equal(t, time.Hour, mr.TTL("checkweb:b"))

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired by redis")
}

func TestRedisClientReplaceAndRemove(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "checkweb:")

	ok, err := c.Replace(ctx, "a", item{Name: "alpha"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("checkweb:a"), "missing keys are not created")

	require.NoError(t, c.Set(ctx, "a", item{Name: "alpha"}, time.Minute))
	ok, err = c.Replace(ctx, "a", item{Name: "alpha", Count: 2}, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Minute, mr.TTL("checkweb:a"))

	require.NoError(t, c.Remove(ctx, "a"))
	assert.False(t, mr.Exists("checkweb:a"))
	require.NoError(t, c.Remove(ctx, "a"), "removing a missing key is not an error")

	ok, err = c.Replace(ctx, "a", item{Name: "alpha"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisClientFlushAllKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "checkweb:")

	for _, k := range []string{"a", "b", "urn:iauthsession:x"} {
		require.NoError(t, c.Set(ctx, k, item{Name: k}, 0))
	}
	require.NoError(t, mr.Set("other:key", "v"))
	require.NoError(t, mr.Set("plain", "v"))

	require.NoError(t, c.FlushAll(ctx))

	assert.ElementsMatch(t, []string{"other:key", "plain"}, mr.Keys())
}

func TestRedisClientFlushAllNeedsPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t, "")
	require.NoError(t, mr.Set("plain", "v"))

	assert.ErrorIs(t, c.FlushAll(ctx), ErrNoKeyPrefix)
	assert.True(t, mr.Exists("plain"))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "checkweb:", escapeGlob("checkweb:"))
	assert.Equal(t, `app\*\?\[1\]\\:`, escapeGlob(`app*?[1]\:`))
}

func TestRedisClientUnreachable(t *testing.T) {
	c := NewRedisClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}, "checkweb:", time.Minute)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, c.Ping(ctx))
	_, err := c.Get(ctx, "k", nil)
	assert.Error(t, err, "transport errors must not be reported as a miss")
	assert.Equal(t, int64(0), c.Stats().Misses)
}
