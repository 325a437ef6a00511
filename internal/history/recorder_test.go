package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.fail {
		return errors.New("boom")
	}
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memSink) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func TestRecorderLifecycle(t *testing.T) {
	sink := &memSink{}
	rec := NewRecorder(nil, sink)
	ev := bridge.NewEvents()
	rec.Attach(ev)

	start := time.Now()
	info := bridge.ProcessInfo{ID: "cfg-1", ProfileID: "cfg", ProfileName: "daily", PID: 77, Status: "running", StartTime: start}
	ev.ProcessStarted.Publish(info)
	info.URL = "http://localhost:3000/"
	ev.ProcessUpdated.Publish(info)
	code := 2
	ev.ProcessExited.Publish(bridge.ExitEvent{TrackingID: "cfg-1", ExitCode: &code, Reason: bridge.ReasonExited})

	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := sink.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != EventLaunched || got[1].Type != EventURL || got[2].Type != EventExited {
		t.Fatalf("unexpected order: %v %v %v", got[0].Type, got[1].Type, got[2].Type)
	}
	last := got[2].Record
	if last.ProfileName != "daily" || last.URL != "http://localhost:3000/" || last.PID != 77 {
		t.Fatalf("exit record lost launch details: %+v", last)
	}
	if !last.ExitCode.Valid || last.ExitCode.Int64 != 2 || !last.StoppedAt.Valid {
		t.Fatalf("exit fields not set: %+v", last)
	}
	if !sink.closed {
		t.Fatal("sink should be closed")
	}
	if ev.ProcessStarted.Len() != 0 || ev.ProcessExited.Len() != 0 {
		t.Fatal("recorder should unsubscribe on Close")
	}
}

func TestRecorderKilledHasNoExitCode(t *testing.T) {
	sink := &memSink{}
	rec := NewRecorder(nil, sink)
	ev := bridge.NewEvents()
	rec.Attach(ev)

	ev.ProcessStarted.Publish(bridge.ProcessInfo{ID: "k"})
	ev.ProcessExited.Publish(bridge.ExitEvent{TrackingID: "k", Reason: bridge.ReasonKilled})
	ev.ProcessExited.Publish(bridge.ExitEvent{TrackingID: "e", Reason: bridge.ReasonError})
	_ = rec.Close(context.Background())

	got := sink.snapshot()
	if len(got) != 3 || got[1].Type != EventKilled || got[1].Record.ExitCode.Valid {
		t.Fatalf("unexpected killed event: %+v", got)
	}
	if got[2].Type != EventError || got[2].Record.TrackingID != "e" {
		t.Fatalf("unknown id should still be recorded: %+v", got[2])
	}
}

func TestRecorderSinkErrorsDoNotStopDelivery(t *testing.T) {
	bad := &memSink{fail: true}
	good := &memSink{}
	rec := NewRecorder(nil, bad, good)
	for i := 0; i < 5; i++ {
		rec.Record(Event{Type: EventLaunched})
	}
	_ = rec.Close(context.Background())
	if len(good.snapshot()) != 5 || len(bad.snapshot()) != 5 {
		t.Fatalf("expected every sink to receive 5 events: good=%d bad=%d", len(good.snapshot()), len(bad.snapshot()))
	}
}

func TestRecorderCloseIdempotent(t *testing.T) {
	rec := NewRecorder(nil)
	if err := rec.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec.Record(Event{Type: EventLaunched}) // after close: ignored
}
