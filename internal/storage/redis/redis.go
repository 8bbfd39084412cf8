// Package redis implements storage.BarStore on Redis hashes.
//
// Layout, with every key under the configured prefix:
//
//	<prefix>:bars:<SYMBOL>  hash  date -> JSON bar
//	<prefix>:meta:<SYMBOL>  hash  last_updated -> RFC3339Nano
//	<prefix>:symbols        set   cached symbols
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	Prefix       string
}

// Option mutates Config.
type Option func(*Config)

// WithAddr sets host:port.
func WithAddr(addr string) Option { return func(c *Config) { c.Addr = addr } }

// WithPassword sets the AUTH password.
func WithPassword(password string) Option { return func(c *Config) { c.Password = password } }

// WithDB selects the logical database.
func WithDB(db int) Option { return func(c *Config) { c.DB = db } }

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option { return func(c *Config) { c.Prefix = prefix } }

// WithPoolSize sets the connection pool size.
func WithPoolSize(n int) Option { return func(c *Config) { c.PoolSize = n } }

// Client wraps a go-redis client with a key prefix.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		Prefix:       "gapup",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

// Redis returns the underlying client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) wrapKey(parts ...string) string {
	key := c.prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
