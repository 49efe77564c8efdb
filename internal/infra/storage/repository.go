package storage

import (
	"context"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// Backend names accepted in configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// RetryRepository handles retry counter storage. It satisfies recovery.RetryStateStore
// and recovery.StateLister.
type RetryRepository interface {
	// Get returns the tab's retry count and whether a record exists
	Get(ctx context.Context, tab domain.TabID) (int, bool, error)

	// Set writes the tab's retry count
	Set(ctx context.Context, tab domain.TabID, count int) error

	// Delete removes the tab's record
	Delete(ctx context.Context, tab domain.TabID) error

	// List returns every record ordered by tab id
	List(ctx context.Context) ([]domain.TabRetryState, error)
}

// PrunableRepository can delete records that were not written since threshold.
type PrunableRepository interface {
	RetryRepository
	DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error)
}
