// Package recovery reschedules reloads for tabs that failed to load, backing off
// exponentially until the tab loads or is closed.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
)

var (
	// ErrNotRecovered is returned when an event arrives before Recover has cleared stale timers.
	ErrNotRecovered = errors.New("controller has not recovered")

	// ErrInvalidEvent is returned for events with an unknown type or a negative tab id.
	ErrInvalidEvent = errors.New("invalid event")
)

// RetryStateStore keeps the number of completed retries per tab.
type RetryStateStore interface {
	// Get returns the retry count and whether a record exists. Absent means 0.
	Get(ctx context.Context, tab domain.TabID) (int, bool, error)

	// Set stores the retry count
	Set(ctx context.Context, tab domain.TabID, count int) error

	// Delete removes the record; no-op if absent
	Delete(ctx context.Context, tab domain.TabID) error
}

// TimerScheduler owns at most one pending reload timer per tab. Fired timers are
// delivered back as domain.EventTimerElapsed events.
type TimerScheduler interface {
	// Create schedules a timer. It does nothing if one already exists for the tab,
	// so callers must check with Get first.
	Create(ctx context.Context, tab domain.TabID, fireAt time.Time) error

	// Get returns the pending timer, or nil if none.
	Get(ctx context.Context, tab domain.TabID) (*domain.ScheduledTimer, error)

	// Clear cancels the tab's timer if present
	Clear(ctx context.Context, tab domain.TabID) error

	// ClearAll cancels every timer owned by this service
	ClearAll(ctx context.Context) error
}

// TabController talks to the browser that owns the tabs.
type TabController interface {
	// Exists reports whether the tab is still open. Errors are treated as "closed".
	Exists(ctx context.Context, tab domain.TabID) (bool, error)

	// Reload reloads the tab
	Reload(ctx context.Context, tab domain.TabID) error
}

// StateLister is implemented by stores that can enumerate their records.
type StateLister interface {
	List(ctx context.Context) ([]domain.TabRetryState, error)
}

// TimerLister is implemented by schedulers that can enumerate pending timers.
type TimerLister interface {
	List(ctx context.Context) ([]domain.ScheduledTimer, error)
}
