package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a Client backed by redis. All keys are prefixed so
// FlushAll only touches entries this client wrote.
type RedisClient struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

var _ Client = (*RedisClient)(nil)

// ErrNoKeyPrefix is returned by FlushAll when the client owns the whole database
var ErrNoKeyPrefix = errors.New("redis cache: refusing to flush without a key prefix")

// escapeGlob quotes the SCAN MATCH metacharacters
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NewRedisClient connects a new redis client
func NewRedisClient(opts *redis.Options, prefix string, defaultTTL time.Duration) *RedisClient {
	return NewRedisClientFrom(redis.NewClient(opts), prefix, defaultTTL)
}

// NewRedisClientFrom wraps an existing redis client
func NewRedisClientFrom(client *redis.Client, prefix string, defaultTTL time.Duration) *RedisClient {
	return &RedisClient{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (c *RedisClient) key(key string) string {
	return c.prefix + key
}

// Ping checks connectivity, used at startup
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get implements Client
func (c *RedisClient) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	c.hits.Add(1)
	if err := decode(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Client
func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

// Replace implements Client with SET XX
func (c *RedisClient) Replace(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := encode(value)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	ok, err := c.client.SetXX(ctx, c.key(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to replace %s in redis: %w", key, err)
	}
	return ok, nil
}

// Remove implements Client
func (c *RedisClient) Remove(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from redis: %w", key, err)
	}
	return nil
}

// FlushAll implements Client. Only keys under the prefix are deleted.
func (c *RedisClient) FlushAll(ctx context.Context) error {
	if c.prefix == "" {
		return ErrNoKeyPrefix
	}
	iter := c.client.Scan(ctx, 0, escapeGlob(c.prefix)+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to flush redis keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to flush redis keys: %w", err)
		}
	}
	return nil
}

// Stats implements Client
func (c *RedisClient) Stats() Stats {
	return Stats{
		Provider: "redis",
		Entries:  -1,
		Size:     -1,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// Close implements Client
func (c *RedisClient) Close() error {
	return c.client.Close()
}
