package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/learning152/ui-tars-launcher/internal/history"
)

// Sink writes launch history to a SQLite database. Timestamps are stored as
// Unix milliseconds.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launch_history(
			occurred_at INTEGER NOT NULL,
			event TEXT NOT NULL,
			tracking_id TEXT NOT NULL,
			profile_id TEXT NOT NULL,
			profile_name TEXT NOT NULL,
			pid INTEGER NOT NULL,
			command TEXT,
			url TEXT,
			started_at INTEGER NOT NULL,
			stopped_at INTEGER,
			exit_code INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_tracking ON launch_history(tracking_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	var stopped any
	if rec.StoppedAt.Valid {
		stopped = rec.StoppedAt.Time.UnixMilli()
	}
	var code any
	if rec.ExitCode.Valid {
		code = rec.ExitCode.Int64
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launch_history(occurred_at, event, tracking_id, profile_id, profile_name, pid, command, url, started_at, stopped_at, exit_code)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UnixMilli(), string(e.Type), rec.TrackingID, rec.ProfileID, rec.ProfileName,
		rec.PID, rec.Command, rec.URL, rec.StartedAt.UnixMilli(), stopped, code)
	return err
}

// Recent returns the newest events first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, tracking_id, profile_id, profile_name, pid, command, url, started_at, stopped_at, exit_code
		FROM launch_history ORDER BY rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			e                 history.Event
			occurred, started int64
			stopped           sql.NullInt64
			cmd, url          sql.NullString
			typ               string
		)
		if err := rows.Scan(&occurred, &typ, &e.Record.TrackingID, &e.Record.ProfileID, &e.Record.ProfileName,
			&e.Record.PID, &cmd, &url, &started, &stopped, &e.Record.ExitCode); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.OccurredAt = time.UnixMilli(occurred).UTC()
		e.Record.StartedAt = time.UnixMilli(started).UTC()
		e.Record.Command = cmd.String
		e.Record.URL = url.String
		if stopped.Valid {
			e.Record.StoppedAt = sql.NullTime{Time: time.UnixMilli(stopped.Int64).UTC(), Valid: true}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
