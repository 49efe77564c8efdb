package domain

import (
	"strconv"
	"time"
)

// TabID is the opaque numeric identifier the browser assigns to a tab.
type TabID int64

func (id TabID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseTabID parses a decimal tab identifier.
func ParseTabID(s string) (TabID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TabID(n), nil
}

// TabRetryState is the retry history of a tab that has failed to load.
// A missing record means zero completed retries.
type TabRetryState struct {
	TabID      TabID     `json:"tab_id"     db:"tab_id"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ScheduledTimer is a pending one-shot reload for a tab. At most one exists per tab.
type ScheduledTimer struct {
	TabID  TabID     `json:"tab_id"`
	FireAt time.Time `json:"fire_at"`
}
