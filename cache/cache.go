package cache

import (
	"errors"
	"io"
	"time"
)

// Cache stores upstream payloads identified by Key for a limited time.
//
// A miss does not distinguish "never stored" from "expired": both
// return ErrMissing. Implementations must be safe for concurrent use
// and must never share entry memory with callers.
type Cache interface {
	io.Closer
	Stats() Stats
	// Get returns the cached payload or ErrMissing.
	Get(key *Key) ([]byte, error)
	// Put stores the payload, overwriting any previous entry and
	// resetting its expiration.
	Put(key *Key, payload []byte, ttl time.Duration) error
	Name() string
}

// ErrMissing is returned when the entry isn't found in the cache.
var ErrMissing = errors.New("missing cache entry")
