package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces token keys in a shared Redis.
const DefaultRedisPrefix = "modelgate:token:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. "redis://localhost:6379").
	URL string

	// Prefix namespaces keys (defaults to DefaultRedisPrefix).
	Prefix string
}

// RedisCache is a TokenCache backed by Redis, letting multiple gateway
// instances share one access token per authorization key.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	slog.Info("redis token cache connected", "prefix", prefix)
	return &RedisCache{client: client, prefix: prefix}, nil
}

// Get returns the token for key when Redis still holds it.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get token from redis: %w", err)
	}
	return token, true, nil
}

// Set stores token under key with an expiry-derived TTL.
func (c *RedisCache) Set(ctx context.Context, key, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt) - expirySlack
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.prefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token in redis: %w", err)
	}
	return nil
}

// Delete drops the token for key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token from redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
