package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/tabretry/internal/core/config"
	"github.com/vietddude/tabretry/internal/core/domain"
	redisclient "github.com/vietddude/tabretry/internal/infra/redis"
	"github.com/vietddude/tabretry/internal/infra/storage"
	"github.com/vietddude/tabretry/internal/infra/storage/memory"
	"github.com/vietddude/tabretry/internal/infra/storage/postgres"
	"github.com/vietddude/tabretry/internal/infra/timer"
	"github.com/vietddude/tabretry/internal/reload/recovery"
)

// Timers is a TimerScheduler that can also enumerate its pending timers.
type Timers interface {
	recovery.TimerScheduler
	recovery.TimerLister
}

// Backends holds the storage connections selected by configuration.
type Backends struct {
	Retries storage.RetryRepository
	Timers  Timers

	// RedisTimers is set when timers live in Redis and must be polled.
	RedisTimers *redisclient.TimerScheduler
	Redis       *redisclient.Client
	DB          *postgres.DB
}

// OpenBackends connects the configured retry store and timer scheduler. Fired
// timers are delivered to onFire.
func OpenBackends(ctx context.Context, cfg *config.AppConfig, onFire timer.FireFunc) (*Backends, error) {
	b := &Backends{}

	if cfg.NeedsRedis() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.Redis = client
	}

	switch cfg.Store.Backend {
	case storage.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		b.DB = db
		if err := db.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Retries = postgres.NewRetryRepo(db)
		slog.Info("Using PostgreSQL retry store")
	case storage.BackendRedis:
		b.Retries = redisclient.NewRetryStore(b.Redis, cfg.Store.Retention)
		slog.Info("Using Redis retry store", "ttl", cfg.Store.Retention)
	default:
		b.Retries = memory.NewRetryRepo(memory.NewMemoryStorage())
		slog.Info("Using memory retry store")
	}

	if cfg.Timers.Backend == config.TimersRedis {
		b.RedisTimers = redisclient.NewTimerScheduler(b.Redis, cfg.Redis.PollInterval, onFire)
		b.Timers = b.RedisTimers
		slog.Info("Using Redis timers", "poll_interval", cfg.Redis.PollInterval)
	} else {
		b.Timers = timer.NewLocalScheduler(onFire)
		slog.Info("Using local timers")
	}

	return b, nil
}

// Pruner returns the retry repository if it supports retention pruning.
func (b *Backends) Pruner() (storage.PrunableRepository, bool) {
	p, ok := b.Retries.(storage.PrunableRepository)
	return p, ok
}

// Reset deletes one tab's retry counter and pending timer.
func (b *Backends) Reset(ctx context.Context, tab domain.TabID) error {
	if err := b.Retries.Delete(ctx, tab); err != nil {
		return fmt.Errorf("failed to delete retry count for tab %d: %w", tab, err)
	}
	if err := b.Timers.Clear(ctx, tab); err != nil {
		return fmt.Errorf("failed to clear timer for tab %d: %w", tab, err)
	}
	return nil
}

// Close releases every open connection.
func (b *Backends) Close() error {
	var errs []error
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
