package redis

import (
	"context"
	"fmt"
	"time"

	"traingrid/pkg/config"

	"github.com/go-redis/redis/v8"
)

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second

// RedisClient wraps the shared connection used by the worker mirror and
// the webhook queue.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient dials Redis and verifies the connection before handing
// it out.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient exposes the underlying go-redis client.
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close releases the connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
