package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/KretovDmitry/nairabulk-orders/internal/config"
	"github.com/redis/go-redis/v9"
)

// Open connects to Redis and checks connectivity.
// The caller owns the returned client.
func Open(ctx context.Context, cfg config.Redis) (*Store, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store, err := New(client, cfg.Namespace)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return store, client, nil
}
