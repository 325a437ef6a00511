// Package bridge is the boundary between the process supervisor and whatever
// front end drives it: typed event topics flowing out and a command contract
// flowing in.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/profile"
)

// Topic is a typed observable. Publish delivers to every subscriber
// synchronously, in subscription order, so ordering by the publisher is kept.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.subs {
				if s.id == id {
					t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every current subscriber with v.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := t.subs
	t.mu.RUnlock()
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// LogKind tags a log line.
type LogKind string

const (
	KindStdout LogKind = "stdout"
	KindStderr LogKind = "stderr"
	KindInfo   LogKind = "info"
	KindError  LogKind = "error"
	KindExit   LogKind = "exit"
)

// LogEntry is one line group shown in the output pane.
type LogEntry struct {
	Kind      LogKind   `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	ProcessID string    `json:"processId,omitempty"`
}

// Exit reasons carried by ExitEvent.
const (
	ReasonExited = "exited"
	ReasonError  = "error"
	ReasonKilled = "killed"
)

// ExitEvent announces that a tracked process is gone. ExitCode is nil when the
// process was killed or terminated by a signal.
type ExitEvent struct {
	TrackingID string `json:"trackingId"`
	ExitCode   *int   `json:"exitCode"`
	Reason     string `json:"reason"`
}

// ProcessInfo is the process record snapshot published to front ends.
type ProcessInfo struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profileId"`
	ProfileName string    `json:"profileName"`
	PID         int       `json:"pid"`
	URL         string    `json:"url,omitempty"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"startTime"`
	Command     string    `json:"command,omitempty"`
}

// Events bundles the supervisor's outbound topics.
type Events struct {
	ProcessStarted Topic[ProcessInfo]
	ProcessUpdated Topic[ProcessInfo]
	ProcessExited  Topic[ExitEvent]
	LogOutput      Topic[LogEntry]
}

// NewEvents returns an empty set of topics.
func NewEvents() *Events { return &Events{} }

// Log publishes a log entry stamped with the current time.
func (e *Events) Log(kind LogKind, processID, text string) {
	e.LogOutput.Publish(LogEntry{Kind: kind, Text: text, Timestamp: time.Now(), ProcessID: processID})
}

// Commands is what a front end may ask of the supervisor.
type Commands interface {
	Launch(ctx context.Context, p profile.Profile) (string, error)
	ListProcesses(ctx context.Context) ([]ProcessInfo, error)
	KillProcess(ctx context.Context, trackingID string) error
}
