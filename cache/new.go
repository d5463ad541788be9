package cache

import (
	"fmt"

	"github.com/contentsquare/tablecheck/clients"
	"github.com/contentsquare/tablecheck/config"
)

// New builds the cache backend selected by cfg.Mode.
func New(cfg config.Cache) (Cache, error) {
	switch cfg.Mode {
	case "memory":
		return newMemoryCache(cfg.Mode), nil
	case "redis":
		client, err := clients.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return newRedisCache(client, cfg.Mode), nil
	default:
		return nil, fmt.Errorf("unknown cache mode %q", cfg.Mode)
	}
}
