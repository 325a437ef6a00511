package process

import (
	"context"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/metrics"
)

// Shutdown kills every live process tree, removes all launch scripts and
// stops the event loop. Kill failures are logged, not returned. Calling it
// again is a no-op.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	reply := make(chan ctrlReply, 1)
	select {
	case s.ctrl <- ctrlMsg{typ: ctrlShutdown, reply: reply}:
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Shutdown has completed.
func (s *Supervisor) Done() <-chan struct{} { return s.stopped }

func (s *Supervisor) cleanup() {
	start := time.Now()
	killed := 0
	for id, e := range s.table {
		if err := s.kill(e.rec.PID); err != nil {
			s.log.Warn("shutdown kill failed", "id", id, "pid", e.rec.PID, "error", err)
			continue
		}
		killed++
	}
	for id, path := range s.scripts {
		if err := removeScript(path); err != nil {
			s.log.Warn("remove script failed", "id", id, "path", path, "error", err)
		}
	}
	clear(s.table)
	clear(s.scripts)
	metrics.SetRunning(0)
	s.log.Info("supervisor stopped", "killed", killed, "took", time.Since(start))
}
