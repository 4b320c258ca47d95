// Package redisx constructs the shared go-redis client used by the Status
// Channel. The Artifact Cache does not use it; that cache is file-backed only.
package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/deckpipe/deckpipe/internal/config"
)

// NewClient builds and pings a redis client per cfg.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisx: ping failed: %w", err)
	}
	return client, nil
}
