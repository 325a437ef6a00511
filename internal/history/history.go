package history

import (
	"context"
	"database/sql"
	"time"
)

// EventType defines the kind of launch lifecycle event.
type EventType string

const (
	EventLaunched EventType = "launched"
	EventURL      EventType = "url"
	EventExited   EventType = "exited"
	EventError    EventType = "error"
	EventKilled   EventType = "killed"
)

// Record is the persisted view of one launch.
type Record struct {
	TrackingID  string        `json:"tracking_id"`
	ProfileID   string        `json:"profile_id"`
	ProfileName string        `json:"profile_name"`
	PID         int           `json:"pid"`
	Command     string        `json:"command,omitempty"`
	URL         string        `json:"url,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	StoppedAt   sql.NullTime  `json:"stopped_at"`
	ExitCode    sql.NullInt64 `json:"exit_code"`
}

// Event is one lifecycle transition exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read back what they stored.
type Querier interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
