package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/tabretry/internal/infra/storage"
	"github.com/vietddude/tabretry/internal/reload/recovery"
)

// MinRetention is the shortest accepted store.retention. A retrying tab rewrites its
// counter at most MaxBackoff+Jitter apart, so shorter retention would drop live history.
const MinRetention = 2 * (recovery.DefaultMaxBackoff + recovery.DefaultJitter)

// Timer backends.
const (
	TimersLocal = "local"
	TimersRedis = "redis"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${ENV} references and applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = 256
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "tabretry"
	}
	if c.Redis.PollInterval == 0 {
		c.Redis.PollInterval = time.Second
	}
	if c.Browser.URL == "" {
		c.Browser.URL = "http://localhost:9222"
	}
	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 10 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = storage.BackendMemory
	}
	if c.Timers.Backend == "" {
		c.Timers.Backend = TimersLocal
	}
}

// Validate checks backend selections against the connections they need.
func (c *AppConfig) Validate() error {
	switch c.Store.Backend {
	case storage.BackendMemory:
	case storage.BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("store backend %q requires redis.url", c.Store.Backend)
		}
	case storage.BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("store backend %q requires database.url", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Timers.Backend {
	case TimersLocal:
	case TimersRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("timers backend %q requires redis.url", c.Timers.Backend)
		}
	default:
		return fmt.Errorf("unknown timers backend %q", c.Timers.Backend)
	}

	if c.Events.RedisChannel != "" && c.Redis.URL == "" {
		return fmt.Errorf("events.redis_channel requires redis.url")
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative")
	}
	if c.Store.Retention > 0 && c.Store.Retention < MinRetention {
		return fmt.Errorf("store.retention %s is below the minimum %s", c.Store.Retention, MinRetention)
	}
	return nil
}

// NeedsRedis reports whether any component uses the Redis connection.
func (c *AppConfig) NeedsRedis() bool {
	return c.Store.Backend == storage.BackendRedis ||
		c.Timers.Backend == TimersRedis ||
		c.Events.RedisChannel != ""
}
