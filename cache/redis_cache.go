package cache

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/contentsquare/tablecheck/log"
)

const getTimeout = 2 * time.Second
const putTimeout = 2 * time.Second
const statsTimeout = 500 * time.Millisecond

// redisCache keeps payloads in redis and leaves expiry to redis TTLs.
// It lets several service instances share one fetch window.
type redisCache struct {
	name   string
	client redis.UniversalClient
}

func newRedisCache(client redis.UniversalClient, name string) *redisCache {
	return &redisCache{
		name:   name,
		client: client,
	}
}

func (r *redisCache) Get(key *Key) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), getTimeout)
	defer cancel()

	payload, err := r.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	if err != nil {
		// Errors such as timeouts count as misses; the caller
		// falls back to the network.
		log.Errorf("failed to get key %s with error: %s", key, err)
		return nil, ErrMissing
	}
	return payload, nil
}

func (r *redisCache) Put(key *Key, payload []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	return r.client.Set(ctx, key.String(), payload, ttl).Err()
}

var usedMemoryRegexp = regexp.MustCompile(`used_memory:([0-9]+)\r\n`)

// Stats makes two calls to redis: DBSize for the number of keys and
// INFO for used_memory. It reports database size, not cache size.
func (r *redisCache) Stats() Stats {
	return Stats{
		Items: r.nbOfKeys(),
		Size:  r.nbOfBytes(),
	}
}

func (r *redisCache) nbOfKeys() uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	nbOfKeys, err := r.client.DBSize(ctx).Result()
	if err != nil {
		log.Errorf("failed to fetch nb of keys in redis: %s", err)
	}
	return uint64(nbOfKeys)
}

func (r *redisCache) nbOfBytes() uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	memoryInfo, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		log.Errorf("failed to fetch nb of bytes in redis: %s", err)
	}
	matches := usedMemoryRegexp.FindStringSubmatch(memoryInfo)

	var cacheSize int
	if len(matches) > 1 {
		cacheSize, err = strconv.Atoi(matches[1])
		if err != nil {
			log.Errorf("failed to parse memory usage with error %s", err)
		}
	}
	return uint64(cacheSize)
}

func (r *redisCache) Name() string {
	return r.name
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
