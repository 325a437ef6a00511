package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/learning152/ui-tars-launcher/internal/history"
)

// Sink sends launch events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to the native protocol address addr and verifies it with a ping.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

// EnsureTable creates the MergeTree table used by Send.
func (s *Sink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			type String,
			occurred_at DateTime64(3),
			tracking_id String,
			profile_id String,
			profile_name String,
			pid Int32,
			command String,
			url String,
			started_at DateTime64(3),
			stopped_at Nullable(DateTime64(3)),
			exit_code Nullable(Int64)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, tracking_id)
	`)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	var stopped, code any
	if rec.StoppedAt.Valid {
		stopped = rec.StoppedAt.Time
	}
	if rec.ExitCode.Valid {
		code = rec.ExitCode.Int64
	}
	query := fmt.Sprintf(`INSERT INTO %s (type, occurred_at, tracking_id, profile_id, profile_name, pid, command, url, started_at, stopped_at, exit_code) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		string(e.Type),
		e.OccurredAt,
		rec.TrackingID,
		rec.ProfileID,
		rec.ProfileName,
		int32(rec.PID),
		rec.Command,
		rec.URL,
		rec.StartedAt,
		stopped,
		code,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}
