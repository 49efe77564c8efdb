package config

import (
	"time"

	"github.com/vietddude/tabretry/internal/infra/browser"
	redisclient "github.com/vietddude/tabretry/internal/infra/redis"
	"github.com/vietddude/tabretry/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Browser  browser.Config     `yaml:"browser"`
	Store    StoreConfig        `yaml:"store"`
	Timers   TimersConfig       `yaml:"timers"`
	Events   EventsConfig       `yaml:"events"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port      int `yaml:"port"`
	GRPCPort  int `yaml:"grpc_port"`  // 0 = disabled
	QueueSize int `yaml:"queue_size"` // dispatch buffer
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig selects where retry counters live.
type StoreConfig struct {
	Backend   string        `yaml:"backend"`   // memory, redis, postgres
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}

// TimersConfig selects the reload timer scheduler.
type TimersConfig struct {
	Backend string `yaml:"backend"` // local, redis
}

// EventsConfig configures optional event sources besides HTTP ingest.
type EventsConfig struct {
	RedisChannel string `yaml:"redis_channel"` // empty = disabled
}
