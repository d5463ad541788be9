package clients

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/contentsquare/tablecheck/config"
)

func NewRedisClient(cfg config.Redis) (redis.UniversalClient, error) {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Username: cfg.Username,
		Password: cfg.Password,
	})

	err := r.Ping(context.Background()).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return r, nil
}
