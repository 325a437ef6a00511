// Package client talks to a running launcher daemon over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL matches the daemon's default listen address and base path.
const DefaultBaseURL = "http://127.0.0.1:8787/api"

// Client provides HTTP client functionality to communicate with the launcher daemon
type Client struct {
	baseURL string
	client  *http.Client
	stream  *http.Client // no timeout, for /events
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a new launcher API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
		stream:  &http.Client{},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/processes", nil, nil)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Launch starts the given profile and returns its tracking id.
func (c *Client) Launch(ctx context.Context, p Profile) (string, error) {
	var r Result
	if err := c.do(ctx, http.MethodPost, "/launch", p, &r); err != nil {
		return "", err
	}
	c.logger.Debug("Launched", "trackingId", r.TrackingID)
	return r.TrackingID, nil
}

// LaunchStored launches a stored profile by id or name.
func (c *Client) LaunchStored(ctx context.Context, ref string) (string, error) {
	var r Result
	if err := c.do(ctx, http.MethodPost, "/launch?profile="+url.QueryEscape(ref), nil, &r); err != nil {
		return "", err
	}
	return r.TrackingID, nil
}

// Processes lists running processes.
func (c *Client) Processes(ctx context.Context) ([]Process, error) {
	var out []Process
	err := c.do(ctx, http.MethodGet, "/processes", nil, &out)
	return out, err
}

// Kill terminates the process tree of a tracking id.
func (c *Client) Kill(ctx context.Context, trackingID string) error {
	return c.do(ctx, http.MethodPost, "/processes/"+url.PathEscape(trackingID)+"/kill", nil, nil)
}

// Profiles lists stored profiles, optionally filtered.
func (c *Client) Profiles(ctx context.Context, term, provider string) ([]Profile, error) {
	q := url.Values{}
	if term != "" {
		q.Set("q", term)
	}
	if provider != "" {
		q.Set("provider", provider)
	}
	path := "/profiles"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Profile
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Profile fetches one stored profile by id.
func (c *Client) Profile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id), nil, &p)
	return p, err
}

// SaveProfile creates or replaces a profile and returns the stored copy.
func (c *Client) SaveProfile(ctx context.Context, p Profile) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPost, "/profiles", p, &out)
	return out, err
}

// DeleteProfile removes a stored profile.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/profiles/"+url.PathEscape(id), nil, nil)
}

// SetDefault marks a profile as the single default.
func (c *Client) SetDefault(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/profiles/"+url.PathEscape(id)+"/default", nil, nil)
}

// DuplicateProfile copies a profile and returns the copy.
func (c *Client) DuplicateProfile(ctx context.Context, id string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodPost, "/profiles/"+url.PathEscape(id)+"/duplicate", nil, &out)
	return out, err
}

// ProfileStats returns the store summary.
func (c *Client) ProfileStats(ctx context.Context) (ProfileStats, error) {
	var st ProfileStats
	err := c.do(ctx, http.MethodGet, "/profiles/stats", nil, &st)
	return st, err
}

// ExportProfiles copies the configs.json envelope to w.
func (c *Client) ExportProfiles(ctx context.Context, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profiles/export", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// ImportProfiles replaces the stored profiles with the contents of r.
func (c *Client) ImportProfiles(ctx context.Context, r io.Reader) ([]Profile, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var out []Profile
	err = c.do(ctx, http.MethodPost, "/profiles/import", json.RawMessage(body), &out)
	return out, err
}

// Providers returns the provider catalogue.
func (c *Client) Providers(ctx context.Context) ([]Provider, error) {
	var out []Provider
	err := c.do(ctx, http.MethodGet, "/providers", nil, &out)
	return out, err
}

// EnvCheck reports the agent toolchain status.
func (c *Client) EnvCheck(ctx context.Context) (EnvStatus, error) {
	var st EnvStatus
	err := c.do(ctx, http.MethodGet, "/env", nil, &st)
	return st, err
}

// EnvInstall runs the agent installer on the daemon host. Progress is
// published on the event stream.
func (c *Client) EnvInstall(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/env/install", nil)
	if err != nil {
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.handleErrorResponse(resp)
}

// History returns the most recent launch history events.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	var out []HistoryEvent
	err := c.do(ctx, http.MethodGet, "/history?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// Stream is an open server-sent event stream.
type Stream struct {
	body io.ReadCloser
	sc   *bufio.Scanner
}

// Subscribe opens the event stream. It returns once the daemon has accepted
// the subscription, so every event published afterwards is delivered.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if err := c.handleErrorResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Stream{body: resp.Body, sc: sc}, nil
}

// Next blocks for the next event. It returns io.EOF when the stream ends.
func (s *Stream) Next() (Event, error) {
	var ev Event
	var data bytes.Buffer
	for s.sc.Scan() {
		line := s.sc.Text()
		switch {
		case line == "":
			if ev.Name != "" || data.Len() > 0 {
				ev.Data = append(json.RawMessage(nil), data.Bytes()...)
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := s.sc.Err(); err != nil {
		return Event{}, fmt.Errorf("read events: %w", err)
	}
	return Event{}, io.EOF
}

// Close ends the stream.
func (s *Stream) Close() error { return s.body.Close() }

// Events streams server-sent events to fn until ctx is cancelled, the
// server closes the stream, or fn returns false.
func (c *Client) Events(ctx context.Context, fn func(Event) bool) error {
	st, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	for {
		ev, err := st.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !fn(ev) {
			return nil
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do performs a JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// NotFound reports whether the daemon answered 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var r Result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", r.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: r.Error}
}
