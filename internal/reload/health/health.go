// Package health provides service health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// LastEvent describes the most recently handled event.
type LastEvent struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	TabID     int64     `json:"tab_id"`
	HandledAt time.Time `json:"handled_at"`
}

// Report contains the full service health report.
type Report struct {
	Status        SystemStatus `json:"status"`
	Recovered     bool         `json:"recovered"`
	PendingTimers int          `json:"pending_timers"`
	TrackedTabs   int          `json:"tracked_tabs"`
	QueueDepth    int          `json:"queue_depth"`
	LastEvent     *LastEvent   `json:"last_event,omitempty"`
	Errors        []string     `json:"errors,omitempty"`
	CheckedAt     time.Time    `json:"checked_at"`
}
