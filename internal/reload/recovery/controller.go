package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
	"github.com/vietddude/tabretry/internal/reload/metrics"
)

// Controller drives the per-tab retry state machine. It keeps no per-tab state of
// its own: a tab is pending a retry exactly when the TimerScheduler has a timer for it.
//
// The duplicate guard in handleError reads the scheduler and then creates a timer
// without an atomic section. Two concurrent Handle calls for the same tab can both
// pass the check; the next commit or fired timer reconciles the state.
type Controller struct {
	store     RetryStateStore
	timers    TimerScheduler
	tabs      TabController
	strategy  *ExponentialBackoff
	now       func() time.Time
	log       *slog.Logger
	recovered atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a retry controller. A nil strategy uses DefaultBackoff.
func NewController(
	store RetryStateStore,
	timers TimerScheduler,
	tabs TabController,
	strategy *ExponentialBackoff,
	opts ...Option,
) *Controller {
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	c := &Controller{
		store:    store,
		timers:   timers,
		tabs:     tabs,
		strategy: strategy,
		now:      time.Now,
		log:      slog.Default().With("component", "recovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recover discards every timer left by a previous run. It must be called once before
// any event is handled. Retry counts are kept so backoff keeps growing across restarts.
func (c *Controller) Recover(ctx context.Context) error {
	if err := c.timers.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear timers: %w", err)
	}
	c.recovered.Store(true)

	c.log.Info("Cleared reloads scheduled by a previous run")
	c.log.Info("Backoff configured",
		"initial", c.strategy.InitialDelay,
		"max", c.strategy.MaxDelay,
		"jitter", c.strategy.Jitter,
	)
	return nil
}

// Recovered reports whether Recover has completed.
func (c *Controller) Recovered() bool {
	return c.recovered.Load()
}

// Handle dispatches a single event to its transition.
func (c *Controller) Handle(ctx context.Context, ev domain.Event) error {
	if !c.recovered.Load() {
		return ErrNotRecovered
	}
	if ev.TabID < 0 {
		return fmt.Errorf("%w: negative tab id %d", ErrInvalidEvent, ev.TabID)
	}

	var err error
	switch ev.Type {
	case domain.EventNavigationError:
		err = c.handleError(ctx, ev)
	case domain.EventNavigationCommitted:
		err = c.handleCommitted(ctx, ev)
	case domain.EventTimerElapsed:
		err = c.handleTimer(ctx, ev)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsHandled.WithLabelValues(string(ev.Type), result).Inc()
	return err
}

func (c *Controller) handleError(ctx context.Context, ev domain.Event) error {
	retries, _, err := c.store.Get(ctx, ev.TabID)
	if err != nil {
		return fmt.Errorf("failed to get retry count for tab %d: %w", ev.TabID, err)
	}

	backoff := c.strategy.BaseDelay(retries)
	delay, _ := c.strategy.GetDelay(retries)

	pending, err := c.timers.Get(ctx, ev.TabID)
	if err != nil {
		return fmt.Errorf("failed to get timer for tab %d: %w", ev.TabID, err)
	}
	if pending != nil {
		metrics.DuplicatesSuppressed.Inc()
		c.log.Info("Navigation error ignored, reload already pending",
			"tab", ev.TabID,
			"fire_at", pending.FireAt,
			"event_id", ev.ID,
		)
		return nil
	}

	fireAt := c.now().Add(delay)
	if err := c.timers.Create(ctx, ev.TabID, fireAt); err != nil {
		return fmt.Errorf("failed to schedule reload for tab %d: %w", ev.TabID, err)
	}

	metrics.ReloadsScheduled.Inc()
	metrics.ScheduledBackoff.Observe(delay.Seconds())
	c.log.Info("Navigation error, reload scheduled",
		"tab", ev.TabID,
		"retries", retries,
		"backoff", backoff,
		"delay", delay,
		"event_id", ev.ID,
	)
	return nil
}

func (c *Controller) handleCommitted(ctx context.Context, ev domain.Event) error {
	_, found, err := c.store.Get(ctx, ev.TabID)
	if err != nil {
		return fmt.Errorf("failed to get retry count for tab %d: %w", ev.TabID, err)
	}

	// A first error schedules a timer without writing a record, so both are checked.
	if !found {
		pending, err := c.timers.Get(ctx, ev.TabID)
		if err != nil {
			return fmt.Errorf("failed to get timer for tab %d: %w", ev.TabID, err)
		}
		if pending == nil {
			return nil
		}
	}

	if err := c.store.Delete(ctx, ev.TabID); err != nil {
		return fmt.Errorf("failed to delete retry count for tab %d: %w", ev.TabID, err)
	}
	if err := c.timers.Clear(ctx, ev.TabID); err != nil {
		return fmt.Errorf("failed to clear timer for tab %d: %w", ev.TabID, err)
	}

	metrics.RetryResets.Inc()
	c.log.Info("Tab loaded, retry count reset and pending reload cancelled",
		"tab", ev.TabID,
		"event_id", ev.ID,
	)
	return nil
}

func (c *Controller) handleTimer(ctx context.Context, ev domain.Event) error {
	exists, err := c.tabs.Exists(ctx, ev.TabID)
	if err != nil {
		c.log.Debug("Tab lookup failed, treating as closed", "tab", ev.TabID, "error", err)
		exists = false
	}
	if !exists {
		if err := c.store.Delete(ctx, ev.TabID); err != nil {
			return fmt.Errorf("failed to delete retry count for tab %d: %w", ev.TabID, err)
		}
		metrics.TabsVanished.Inc()
		c.log.Info("Scheduled reload skipped, tab was closed before it fired", "tab", ev.TabID)
		return nil
	}

	retries, _, err := c.store.Get(ctx, ev.TabID)
	if err != nil {
		return fmt.Errorf("failed to get retry count for tab %d: %w", ev.TabID, err)
	}

	deviation := c.now().Sub(ev.ScheduledTime)
	metrics.TimerDeviation.Observe(deviation.Seconds())
	c.log.Info("Performing scheduled reload",
		"tab", ev.TabID,
		"attempt", retries+1,
		"timing", DescribeDeviation(deviation),
	)

	if err := c.store.Set(ctx, ev.TabID, retries+1); err != nil {
		return fmt.Errorf("failed to set retry count for tab %d: %w", ev.TabID, err)
	}
	if err := c.tabs.Reload(ctx, ev.TabID); err != nil {
		return fmt.Errorf("failed to reload tab %d: %w", ev.TabID, err)
	}

	metrics.ReloadsPerformed.Inc()
	return nil
}

// DescribeDeviation renders firedAt-scheduled at millisecond precision.
func DescribeDeviation(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms == 0:
		return "exactly as scheduled"
	case ms < 0:
		return fmt.Sprintf("%d ms earlier than scheduled", -ms)
	default:
		return fmt.Sprintf("%d ms later than scheduled", ms)
	}
}
