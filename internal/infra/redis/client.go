package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/tabretry/internal/core/domain"
)

// Client wraps the Redis connection shared by the retry store, timers and event subscriber.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	KeyPrefix    string        `yaml:"key_prefix"`    // default: tabretry
	PollInterval time.Duration `yaml:"poll_interval"` // timer poll, default: 1s
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tabretry"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) retryKey(tab domain.TabID) string {
	return fmt.Sprintf("%s:retries:%d", c.prefix, tab)
}

func (c *Client) retryPattern() string {
	return fmt.Sprintf("%s:retries:*", c.prefix)
}

func (c *Client) timersKey() string {
	return fmt.Sprintf("%s:timers", c.prefix)
}
