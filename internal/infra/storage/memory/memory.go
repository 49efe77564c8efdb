package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

type MemoryStorage struct {
	retries map[domain.TabID]domain.TabRetryState
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		retries: make(map[domain.TabID]domain.TabRetryState),
	}
}

// -----------------------------------------------------------------------------
// Retry Repository
// -----------------------------------------------------------------------------

type RetryRepo struct {
	store *MemoryStorage
	now   func() time.Time
}

func NewRetryRepo(store *MemoryStorage) *RetryRepo {
	return &RetryRepo{store: store, now: time.Now}
}

func (r *RetryRepo) Get(ctx context.Context, tab domain.TabID) (int, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.retries[tab]
	return s.RetryCount, ok, nil
}

func (r *RetryRepo) Set(ctx context.Context, tab domain.TabID, count int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.retries[tab] = domain.TabRetryState{
		TabID:      tab,
		RetryCount: count,
		UpdatedAt:  r.now(),
	}
	return nil
}

func (r *RetryRepo) Delete(ctx context.Context, tab domain.TabID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.retries, tab)
	return nil
}

func (r *RetryRepo) List(ctx context.Context) ([]domain.TabRetryState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.TabRetryState, 0, len(r.store.retries))
	for _, s := range r.store.retries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out, nil
}

func (r *RetryRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for id, s := range r.store.retries {
		if s.UpdatedAt.Before(threshold) {
			delete(r.store.retries, id)
			n++
		}
	}
	return n, nil
}
