package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/process"
	"github.com/learning152/ui-tars-launcher/internal/profile"
	"github.com/learning152/ui-tars-launcher/internal/server"
)

type stubCommands struct {
	events *bridge.Events
	live   []bridge.ProcessInfo
}

func (s *stubCommands) Launch(_ context.Context, p profile.Profile) (string, error) {
	id := fmt.Sprintf("%s-%d", p.ID, len(s.live)+1)
	info := bridge.ProcessInfo{ID: id, ProfileID: p.ID, ProfileName: p.Name, PID: 100 + len(s.live), Status: process.StatusRunning}
	s.live = append(s.live, info)
	s.events.ProcessStarted.Publish(info)
	return id, nil
}

func (s *stubCommands) ListProcesses(context.Context) ([]bridge.ProcessInfo, error) {
	return s.live, nil
}

func (s *stubCommands) KillProcess(_ context.Context, id string) error {
	for i, p := range s.live {
		if p.ID == id {
			s.live = append(s.live[:i], s.live[i+1:]...)
			s.events.ProcessExited.Publish(bridge.ExitEvent{TrackingID: id, Reason: bridge.ReasonKilled})
			return nil
		}
	}
	return fmt.Errorf("%w: %s", process.ErrNotFound, id)
}

func newTestClient(t *testing.T) (*Client, *bridge.Events) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := profile.NewStore(filepath.Join(t.TempDir(), "configs.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ev := bridge.NewEvents()
	h := server.NewRouter(server.Deps{
		Commands: &stubCommands{events: ev},
		Events:   ev,
		Profiles: store,
	}, "/api").Handler()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/", Timeout: 2 * time.Second}), ev
}

func TestClientLaunchListKill(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	if !c.IsReachable(ctx) {
		t.Fatalf("daemon should be reachable")
	}

	saved, err := c.SaveProfile(ctx, Profile{Name: "Work", Provider: profile.ProviderOpenAI, Model: "gpt"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id, err := c.LaunchStored(ctx, "Work")
	if err != nil || id != saved.ID+"-1" {
		t.Fatalf("launch stored: %q %v", id, err)
	}
	if _, err := c.Launch(ctx, Profile{ID: "adhoc", Provider: profile.ProviderOpenAI, Model: "gpt"}); err != nil {
		t.Fatalf("launch: %v", err)
	}

	ps, err := c.Processes(ctx)
	if err != nil || len(ps) != 2 {
		t.Fatalf("processes: %+v %v", ps, err)
	}
	if err := c.Kill(ctx, id); err != nil {
		t.Fatalf("kill: %v", err)
	}
	err = c.Kill(ctx, id)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.NotFound() {
		t.Fatalf("second kill: want 404 APIError, got %v", err)
	}
}

func TestClientProfiles(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	p, err := c.SaveProfile(ctx, Profile{Name: "Home", Provider: profile.ProviderVolcengine, Model: "doubao"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	dup, err := c.DuplicateProfile(ctx, p.ID)
	if err != nil || dup.Name != "Home (copy)" {
		t.Fatalf("duplicate: %+v %v", dup, err)
	}
	if err := c.SetDefault(ctx, dup.ID); err != nil {
		t.Fatalf("default: %v", err)
	}
	got, err := c.Profile(ctx, dup.ID)
	if err != nil || !got.IsDefault {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, err := c.Profiles(ctx, "home", string(profile.ProviderVolcengine))
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %+v %v", list, err)
	}
	st, err := c.ProfileStats(ctx)
	if err != nil || st.Total != 2 || st.DefaultCount != 1 {
		t.Fatalf("stats: %+v %v", st, err)
	}

	var buf bytes.Buffer
	if err := c.ExportProfiles(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := c.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	imported, err := c.ImportProfiles(ctx, &buf)
	if err != nil || len(imported) != 2 {
		t.Fatalf("import: %+v %v", imported, err)
	}

	providers, err := c.Providers(ctx)
	if err != nil || len(providers) != len(profile.Providers()) {
		t.Fatalf("providers: %v", err)
	}
}

func TestClientEvents(t *testing.T) {
	c, ev := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Events(ctx, func(e Event) bool {
			got <- e
			return e.Name != "logOutput"
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ev.LogOutput.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	ev.ProcessStarted.Publish(bridge.ProcessInfo{ID: "p-1", PID: 7})
	ev.Log(bridge.KindStderr, "p-1", "warning: slow")

	first := <-got
	if first.Name != "processStarted" {
		t.Fatalf("first event %q", first.Name)
	}
	if p, err := first.Process(); err != nil || p.PID != 7 {
		t.Fatalf("process payload: %+v %v", p, err)
	}
	second := <-got
	entry, err := second.Log()
	if err != nil || entry.Kind != bridge.KindStderr || entry.Text != "warning: slow" {
		t.Fatalf("log payload: %+v %v", entry, err)
	}
	if err := <-done; err != nil {
		t.Fatalf("events: %v", err)
	}
}

func TestClientSubscribeDeliversAfterOpen(t *testing.T) {
	c, ev := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// no waiting: the daemon subscribed before answering
	zero := 0
	ev.ProcessExited.Publish(bridge.ExitEvent{TrackingID: "p-1", ExitCode: &zero, Reason: bridge.ReasonExited})

	e, err := st.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	x, err := e.Exit()
	if err != nil || e.Name != "processExited" || x.TrackingID != "p-1" || x.ExitCode == nil || *x.ExitCode != 0 {
		t.Fatalf("exit payload: %q %+v %v", e.Name, x, err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := st.Next(); err == nil {
		t.Fatalf("next after close should fail")
	}
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	if c.IsReachable(context.Background()) {
		t.Fatalf("port 1 should not be reachable")
	}
}

func TestClientLaunchStoredDefault(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	def, err := c.SaveProfile(ctx, Profile{Name: "Main", Provider: profile.ProviderOpenAI, Model: "gpt", IsDefault: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id, err := c.LaunchStored(ctx, "")
	if err != nil || id != def.ID+"-1" {
		t.Fatalf("launch default: %q %v", id, err)
	}
}
