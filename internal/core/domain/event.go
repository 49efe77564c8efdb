package domain

import "time"

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventNavigationError     EventType = "navigation_error"
	EventNavigationCommitted EventType = "navigation_committed"
	EventTimerElapsed        EventType = "timer_elapsed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventNavigationError, EventNavigationCommitted, EventTimerElapsed:
		return true
	}
	return false
}

// Event is a navigation lifecycle transition or a fired reload timer.
type Event struct {
	ID    string    `json:"id,omitempty"`
	Type  EventType `json:"type"`
	TabID TabID     `json:"tab_id"`

	// ScheduledTime is only set for EventTimerElapsed.
	ScheduledTime time.Time `json:"scheduled_time,omitempty"`
}

// NavigationError builds the event emitted when a tab fails to load.
func NavigationError(tab TabID) Event {
	return Event{Type: EventNavigationError, TabID: tab}
}

// NavigationCommitted builds the event emitted when a tab loads successfully.
func NavigationCommitted(tab TabID) Event {
	return Event{Type: EventNavigationCommitted, TabID: tab}
}

// TimerElapsed builds the event delivered when a tab's reload timer fires.
func TimerElapsed(tab TabID, scheduled time.Time) Event {
	return Event{Type: EventTimerElapsed, TabID: tab, ScheduledTime: scheduled}
}
