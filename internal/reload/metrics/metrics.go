package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsHandled tracks dispatched events per type and outcome
	EventsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabretry_events_handled_total",
			Help: "Total number of events handled by the retry controller",
		},
		[]string{"type", "result"},
	)

	// ReloadsScheduled tracks timers created after a navigation error
	ReloadsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_reloads_scheduled_total",
			Help: "Total number of reloads scheduled after a navigation error",
		},
	)

	// DuplicatesSuppressed tracks navigation errors ignored because a reload was already pending
	DuplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_duplicates_suppressed_total",
			Help: "Total number of navigation errors ignored because a reload was already pending",
		},
	)

	// ReloadsPerformed tracks reloads issued when a timer fired
	ReloadsPerformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_reloads_performed_total",
			Help: "Total number of tab reloads performed",
		},
	)

	// TabsVanished tracks timers that fired for tabs that no longer exist
	TabsVanished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_tabs_vanished_total",
			Help: "Total number of scheduled reloads skipped because the tab was closed",
		},
	)

	// RetryResets tracks successful loads that cleared retry history
	RetryResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_retry_resets_total",
			Help: "Total number of tabs whose retry history was reset by a successful load",
		},
	)

	// ScheduledBackoff tracks the delay chosen for each scheduled reload
	ScheduledBackoff = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabretry_scheduled_delay_seconds",
			Help:    "Delay until a scheduled reload, jitter included",
			Buckets: []float64{30, 60, 90, 120, 240, 480, 960, 1260},
		},
	)

	// TimerDeviation tracks how far the actual fire time was from the scheduled time
	TimerDeviation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabretry_timer_deviation_seconds",
			Help:    "Actual fire time minus scheduled fire time",
			Buckets: []float64{-5, -1, -0.1, 0, 0.1, 1, 5, 30, 120},
		},
	)

	// PendingTimers tracks the number of tabs waiting for a reload
	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabretry_pending_timers",
			Help: "Number of tabs with a pending reload",
		},
	)

	// TrackedTabs tracks the number of tabs with retry history
	TrackedTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabretry_tracked_tabs",
			Help: "Number of tabs with stored retry history",
		},
	)

	// RecordsPruned tracks retry records removed by the retention pruner
	RecordsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabretry_records_pruned_total",
			Help: "Total number of stale retry records removed",
		},
	)
)

// DBConnectionPoolUsage tracks database connection pool usage percentage
var DBConnectionPoolUsage = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "tabretry_db_connection_pool_usage_percent",
		Help: "Open database connections as a percentage of the pool limit",
	},
)

// QueueDepth tracks events waiting for the dispatch loop
var QueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "tabretry_dispatch_queue_depth",
		Help: "Number of events waiting to be handled",
	},
)
