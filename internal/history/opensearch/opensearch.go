package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/history"
)

// Sink indexes launch events into OpenSearch (or Elasticsearch) over HTTP.
// Each event is POSTed to baseURL/<index>/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document flattens the nullable columns so the index mapping stays simple.
type document struct {
	Type        history.EventType `json:"type"`
	OccurredAt  time.Time         `json:"occurred_at"`
	TrackingID  string            `json:"tracking_id"`
	ProfileID   string            `json:"profile_id"`
	ProfileName string            `json:"profile_name"`
	PID         int               `json:"pid"`
	Command     string            `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	StoppedAt   *time.Time        `json:"stopped_at,omitempty"`
	ExitCode    *int64            `json:"exit_code,omitempty"`
}

func toDocument(e history.Event) document {
	r := e.Record
	d := document{
		Type:        e.Type,
		OccurredAt:  e.OccurredAt,
		TrackingID:  r.TrackingID,
		ProfileID:   r.ProfileID,
		ProfileName: r.ProfileName,
		PID:         r.PID,
		Command:     r.Command,
		URL:         r.URL,
		StartedAt:   r.StartedAt,
	}
	if r.StoppedAt.Valid {
		t := r.StoppedAt.Time
		d.StoppedAt = &t
	}
	if r.ExitCode.Valid {
		c := r.ExitCode.Int64
		d.ExitCode = &c
	}
	return d
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, s.index)
	b, err := json.Marshal(toDocument(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch sink status %d", resp.StatusCode)
	}
	return nil
}
