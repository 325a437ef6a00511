package history

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
)

const queueSize = 256

// Recorder turns bridge events into history events and delivers them to the
// configured sinks on a single background worker, so publishers never wait on
// sink I/O.
type Recorder struct {
	log   *slog.Logger
	sinks []Sink

	mu     sync.Mutex
	live   map[string]Record
	unsub  []func()
	closed bool

	queue chan Event
	done  chan struct{}
}

// NewRecorder starts the delivery worker. A nil logger means slog.Default().
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		log:   log,
		sinks: append([]Sink(nil), sinks...),
		live:  make(map[string]Record),
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Attach subscribes the recorder to the supervisor topics.
func (r *Recorder) Attach(ev *bridge.Events) {
	u1 := ev.ProcessStarted.Subscribe(r.onStarted)
	u2 := ev.ProcessUpdated.Subscribe(r.onUpdated)
	u3 := ev.ProcessExited.Subscribe(r.onExited)
	r.mu.Lock()
	r.unsub = append(r.unsub, u1, u2, u3)
	r.mu.Unlock()
}

func fromInfo(p bridge.ProcessInfo) Record {
	return Record{
		TrackingID:  p.ID,
		ProfileID:   p.ProfileID,
		ProfileName: p.ProfileName,
		PID:         p.PID,
		Command:     p.Command,
		URL:         p.URL,
		StartedAt:   p.StartTime.UTC(),
	}
}

func (r *Recorder) onStarted(p bridge.ProcessInfo) {
	rec := fromInfo(p)
	r.mu.Lock()
	r.live[p.ID] = rec
	r.mu.Unlock()
	r.Record(Event{Type: EventLaunched, OccurredAt: time.Now().UTC(), Record: rec})
}

func (r *Recorder) onUpdated(p bridge.ProcessInfo) {
	rec := fromInfo(p)
	r.mu.Lock()
	r.live[p.ID] = rec
	r.mu.Unlock()
	r.Record(Event{Type: EventURL, OccurredAt: time.Now().UTC(), Record: rec})
}

func (r *Recorder) onExited(e bridge.ExitEvent) {
	now := time.Now().UTC()
	r.mu.Lock()
	rec, ok := r.live[e.TrackingID]
	delete(r.live, e.TrackingID)
	r.mu.Unlock()
	if !ok {
		rec = Record{TrackingID: e.TrackingID}
	}
	rec.StoppedAt = sql.NullTime{Time: now, Valid: true}
	if e.ExitCode != nil {
		rec.ExitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}
	typ := EventExited
	switch e.Reason {
	case bridge.ReasonKilled:
		typ = EventKilled
	case bridge.ReasonError:
		typ = EventError
	}
	r.Record(Event{Type: typ, OccurredAt: now, Record: rec})
}

// Record queues e for delivery. When the queue is full the event is dropped.
func (r *Recorder) Record(e Event) {
	if len(r.sinks) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("history queue full, dropping event", "type", e.Type, "id", e.Record.TrackingID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink send failed", "type", e.Type, "id", e.Record.TrackingID, "error", err)
			}
			cancel()
		}
	}
}

// Close detaches from the bridge, drains the queue and closes sinks that
// implement io.Closer. It is safe to call more than once.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	unsub := r.unsub
	r.unsub = nil
	close(r.queue)
	r.mu.Unlock()

	for _, u := range unsub {
		u()
	}

	var errs []error
	select {
	case <-r.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
