package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/tabretry/internal/core/domain"
	"github.com/vietddude/tabretry/internal/reload/metrics"
	"github.com/vietddude/tabretry/internal/reload/recovery"
)

const (
	// QueueDegradedDepth marks the dispatch backlog as degraded.
	QueueDegradedDepth = 100
	cacheTTL           = 5 * time.Second
)

// RecoveryState reports whether startup recovery has completed.
type RecoveryState interface {
	Recovered() bool
}

// QueueStats exposes the dispatch loop backlog.
type QueueStats interface {
	Depth() int
	LastEvent() (domain.Event, time.Time, bool)
}

// Monitor aggregates health status from the controller, its stores and the dispatch loop.
type Monitor struct {
	controller RecoveryState
	states     recovery.StateLister
	timers     recovery.TimerLister
	queue      QueueStats
	checks     []dependencyCheck
	now        func() time.Time
	log        *slog.Logger

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor. Any lister may be nil.
func NewMonitor(
	controller RecoveryState,
	states recovery.StateLister,
	timers recovery.TimerLister,
	queue QueueStats,
) *Monitor {
	return &Monitor{
		controller: controller,
		states:     states,
		timers:     timers,
		queue:      queue,
		now:        time.Now,
		log:        slog.Default().With("component", "health"),
	}
}

type dependencyCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// AddCheck registers a dependency probe. A failing probe degrades the report.
func (m *Monitor) AddCheck(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, dependencyCheck{name: name, fn: fn})
}

// CheckHealth builds a report, reusing the previous one for a few seconds.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Listing is a full scan on Redis and Postgres
	if m.lastReport != nil && m.now().Sub(m.lastCheck) < cacheTTL {
		return *m.lastReport
	}

	report := Report{
		Status:    StatusHealthy,
		Recovered: m.controller.Recovered(),
		CheckedAt: m.now(),
	}

	for _, c := range m.checks {
		if err := c.fn(ctx); err != nil {
			report.Errors = append(report.Errors, c.name+": "+err.Error())
		}
	}

	if m.timers != nil {
		timers, err := m.timers.List(ctx)
		if err != nil {
			report.Errors = append(report.Errors, "timers: "+err.Error())
		} else {
			report.PendingTimers = len(timers)
			metrics.PendingTimers.Set(float64(len(timers)))
		}
	}

	if m.states != nil {
		states, err := m.states.List(ctx)
		if err != nil {
			report.Errors = append(report.Errors, "retry store: "+err.Error())
		} else {
			report.TrackedTabs = len(states)
			metrics.TrackedTabs.Set(float64(len(states)))
		}
	}

	if m.queue != nil {
		report.QueueDepth = m.queue.Depth()
		if ev, at, ok := m.queue.LastEvent(); ok {
			report.LastEvent = &LastEvent{
				ID:        ev.ID,
				Type:      string(ev.Type),
				TabID:     int64(ev.TabID),
				HandledAt: at,
			}
		}
	}

	switch {
	case !report.Recovered:
		report.Status = StatusCritical
	case len(report.Errors) > 0 || report.QueueDepth >= QueueDegradedDepth:
		report.Status = StatusDegraded
	}

	m.lastCheck = report.CheckedAt
	m.lastReport = &report
	return report
}

// Start refreshes the report and its gauges periodically until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := m.CheckHealth(ctx)
			if report.Status != StatusHealthy {
				m.log.Warn("Service unhealthy", "status", report.Status, "errors", report.Errors)
			}
		}
	}
}
