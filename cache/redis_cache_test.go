package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*redisCache, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	c := newRedisCache(client, "redis")
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestRedisCachePutGet(t *testing.T) {
	c, _ := newTestRedisCache(t)

	key := newTestKey("ENSG1")
	require.NoError(t, c.Put(key, []byte(`{"id":"ENSG1"}`), 30*time.Second))

	payload, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"ENSG1"}`), payload)
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	_, err := c.Get(newTestKey("never-stored"))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestRedisCacheExpiry(t *testing.T) {
	c, s := newTestRedisCache(t)

	key := newTestKey("ENSG1")
	require.NoError(t, c.Put(key, []byte("payload"), 30*time.Second))

	s.FastForward(29 * time.Second)
	_, err := c.Get(key)
	assert.NoError(t, err)

	s.FastForward(2 * time.Second)
	_, err = c.Get(key)
	assert.ErrorIs(t, err, ErrMissing)
}

func TestRedisCacheStats(t *testing.T) {
	c, _ := newTestRedisCache(t)

	require.NoError(t, c.Put(newTestKey("a"), []byte("12345"), 30*time.Second))
	require.NoError(t, c.Put(newTestKey("b"), []byte("123"), 30*time.Second))

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Items)
}
