package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
)

// Version must be increased with each backward-incompatible change
// in the cached payload layout.
const Version = 1

// Key identifies a cacheable upstream fetch.
type Key struct {
	// Method must contain the HTTP method of the request.
	Method string

	// URL must contain the fully-resolved request URL without query args.
	URL string

	// Params must contain the query args of the request.
	Params url.Values

	// Version represents payload encoding version number
	Version int
}

// NewKey constructs a cache key from the resolved request parts
// with the default version number.
func NewKey(method, u string, params url.Values) *Key {
	return &Key{
		Method:  method,
		URL:     u,
		Params:  params,
		Version: Version,
	}
}

// String returns the string representation of the key.
//
// url.Values.Encode sorts parameters by name, so two requests that
// differ only in parameter order map to the same key.
func (k *Key) String() string {
	s := fmt.Sprintf("V%d; Method=%q; URL=%q; Params=%q", k.Version, k.Method, k.URL, k.Params.Encode())
	h := sha256.Sum256([]byte(s))

	// The first 16 bytes of the hash should be enough
	// for collision prevention :)
	return hex.EncodeToString(h[:16])
}
