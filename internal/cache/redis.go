// Package cache provides the Redis-backed notification ledger and
// registration rate limiter.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "wishday"

// Cache provides Redis access methods.
type Cache struct {
	client *redis.Client
	prefix string
}

// Option adjusts the client built by New.
type Option func(*redis.Options, *Cache)

// WithPrefix replaces DefaultPrefix. Useful when several deployments share
// one Redis database.
func WithPrefix(prefix string) Option {
	return func(_ *redis.Options, c *Cache) { c.prefix = prefix }
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(n int) Option {
	return func(o *redis.Options, _ *Cache) { o.PoolSize = n }
}

// New parses redisURL, connects and pings.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse Redis URL: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 1
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	c := &Cache{prefix: DefaultPrefix}
	for _, o := range opts {
		o(opt, c)
	}
	c.client = redis.NewClient(opt)

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("ping Redis: %w", err)
	}
	return c, nil
}

// NewWithClient wraps an existing client using DefaultPrefix.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: DefaultPrefix}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// key joins the prefix and parts with ':'.
func (c *Cache) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}
