package cache

import (
	"sync"
	"time"

	"github.com/contentsquare/tablecheck/log"
)

// cleanInterval bounds how often the background cleaner scans for
// expired entries.
const cleanInterval = time.Second

type memoryEntry struct {
	payload  []byte
	deadline time.Time
}

// memoryCache is a process-local TTL cache. Entries expire after
// their ttl and are removed either lazily on Get or by a background
// cleaner. There is no LRU and no capacity bound: payloads are small
// and short-lived, so TTL expiry alone keeps the map bounded.
type memoryCache struct {
	name string

	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable for tests.
	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newMemoryCache(name string) *memoryCache {
	c := &memoryCache{
		name:    name,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go func() {
		log.Debugf("cache %q: cleaner start", name)
		c.expiredEntriesCleaner()
		c.wg.Done()
		log.Debugf("cache %q: cleaner stop", name)
	}()

	return c
}

func (c *memoryCache) Get(key *Key) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		return nil, ErrMissing
	}
	if !c.now().Before(e.deadline) {
		// Lazy eviction; the cleaner would get it eventually.
		delete(c.entries, k)
		return nil, ErrMissing
	}

	// Entries stay owned by the cache.
	payload := make([]byte, len(e.payload))
	copy(payload, e.payload)
	return payload, nil
}

func (c *memoryCache) Put(key *Key, payload []byte, ttl time.Duration) error {
	p := make([]byte, len(payload))
	copy(p, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = memoryEntry{
		payload:  p,
		deadline: c.now().Add(ttl),
	}
	return nil
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	for _, e := range c.entries {
		s.Items++
		s.Size += uint64(len(e.payload))
	}
	return s
}

func (c *memoryCache) Name() string {
	return c.name
}

func (c *memoryCache) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return nil
}

func (c *memoryCache) expiredEntriesCleaner() {
	for {
		select {
		case <-time.After(cleanInterval):
		case <-c.stopCh:
			return
		}

		currentTime := c.now()

		c.mu.Lock()
		for k, e := range c.entries {
			if currentTime.After(e.deadline) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}
