package opensearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		body   []byte
		path   string
		method string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "launch-history")
	ev := history.Event{
		Type:       history.EventExited,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			TrackingID:  "cfg-1-1",
			ProfileName: "daily",
			PID:         12345,
			StartedAt:   time.Now().Add(-time.Minute).UTC(),
			StoppedAt:   sql.NullTime{Time: time.Now().UTC(), Valid: true},
			ExitCode:    sql.NullInt64{Int64: 3, Valid: true},
		},
	}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if method != http.MethodPost || path != "/launch-history/_doc" {
		t.Fatalf("unexpected request %s %s", method, path)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if doc["type"] != "exited" || doc["tracking_id"] != "cfg-1-1" || doc["pid"] != float64(12345) {
		t.Fatalf("unexpected document: %v", doc)
	}
	if doc["exit_code"] != float64(3) || doc["stopped_at"] == nil {
		t.Fatalf("nullable fields not flattened: %v", doc)
	}
}

func TestOpenSearchSink_OmitsNulls(t *testing.T) {
	var doc map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&doc)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ev := history.Event{Type: history.EventLaunched, OccurredAt: time.Now().UTC(), Record: history.Record{TrackingID: "x"}}
	if err := New(server.URL, "idx").Send(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["exit_code"]; ok {
		t.Fatalf("exit_code should be omitted: %v", doc)
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventLaunched})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := New("http://127.0.0.1:1", "idx").Send(ctx, history.Event{}); err == nil {
		t.Fatal("expected connection error")
	}
}
