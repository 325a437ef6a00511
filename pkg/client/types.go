package client

import (
	"encoding/json"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/envcheck"
	"github.com/learning152/ui-tars-launcher/internal/history"
	"github.com/learning152/ui-tars-launcher/internal/profile"
)

// Wire types shared with the daemon.
type (
	Profile      = profile.Profile
	ProfileStats = profile.Stats
	Provider     = profile.ProviderInfo
	Process      = bridge.ProcessInfo
	LogEntry     = bridge.LogEntry
	ExitEvent    = bridge.ExitEvent
	EnvStatus    = envcheck.Status
	HistoryEvent = history.Event
)

// Result is the {success, trackingId, error} envelope of command endpoints.
type Result struct {
	Success    bool   `json:"success"`
	TrackingID string `json:"trackingId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Event is one server-sent event. Data holds the raw JSON payload; use the
// Decode helpers to obtain a typed value.
type Event struct {
	Name string
	Data json.RawMessage
}

// Log decodes a logOutput payload.
func (e Event) Log() (LogEntry, error) {
	var v LogEntry
	err := json.Unmarshal(e.Data, &v)
	return v, err
}

// Exit decodes a processExited payload.
func (e Event) Exit() (ExitEvent, error) {
	var v ExitEvent
	err := json.Unmarshal(e.Data, &v)
	return v, err
}

// Process decodes a processStarted or processUpdated payload.
func (e Event) Process() (Process, error) {
	var v Process
	err := json.Unmarshal(e.Data, &v)
	return v, err
}
