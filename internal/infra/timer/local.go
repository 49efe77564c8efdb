// Package timer provides an in-process reload timer scheduler.
package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

// FireFunc receives a timer-elapsed event. It is called from the timer goroutine.
type FireFunc func(ev domain.Event)

type localTimer struct {
	fireAt time.Time
	t      *time.Timer
}

// LocalScheduler keeps one time.Timer per tab. Timers do not survive a restart.
type LocalScheduler struct {
	mu     sync.Mutex
	timers map[domain.TabID]*localTimer
	onFire FireFunc
	now    func() time.Time
}

// NewLocalScheduler creates a scheduler delivering fired timers to onFire.
func NewLocalScheduler(onFire FireFunc) *LocalScheduler {
	return &LocalScheduler{
		timers: make(map[domain.TabID]*localTimer),
		onFire: onFire,
		now:    time.Now,
	}
}

// Create schedules a timer unless one is already pending for the tab.
func (s *LocalScheduler) Create(ctx context.Context, tab domain.TabID, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[tab]; ok {
		return nil
	}

	lt := &localTimer{fireAt: fireAt}
	lt.t = time.AfterFunc(fireAt.Sub(s.now()), func() { s.fire(tab, lt) })
	s.timers[tab] = lt
	return nil
}

func (s *LocalScheduler) fire(tab domain.TabID, lt *localTimer) {
	s.mu.Lock()
	// Cleared or replaced while the callback was starting
	if s.timers[tab] != lt {
		s.mu.Unlock()
		return
	}
	delete(s.timers, tab)
	s.mu.Unlock()

	if s.onFire != nil {
		s.onFire(domain.TimerElapsed(tab, lt.fireAt))
	}
}

// Get returns the pending timer for the tab, or nil.
func (s *LocalScheduler) Get(ctx context.Context, tab domain.TabID) (*domain.ScheduledTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, ok := s.timers[tab]
	if !ok {
		return nil, nil
	}
	return &domain.ScheduledTimer{TabID: tab, FireAt: lt.fireAt}, nil
}

// Clear cancels the tab's timer if present.
func (s *LocalScheduler) Clear(ctx context.Context, tab domain.TabID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lt, ok := s.timers[tab]; ok {
		lt.t.Stop()
		delete(s.timers, tab)
	}
	return nil
}

// ClearAll cancels every pending timer.
func (s *LocalScheduler) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tab, lt := range s.timers {
		lt.t.Stop()
		delete(s.timers, tab)
	}
	return nil
}

// List returns pending timers ordered by fire time.
func (s *LocalScheduler) List(ctx context.Context) ([]domain.ScheduledTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ScheduledTimer, 0, len(s.timers))
	for tab, lt := range s.timers {
		out = append(out, domain.ScheduledTimer{TabID: tab, FireAt: lt.fireAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}
