package process

import (
	"errors"
	"os"
	"os/exec"

	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/profile"
)

// Record is the snapshot of a tracked launch handed to callers and front ends.
type Record = bridge.ProcessInfo

// Record status values.
const (
	StatusRunning = "running"
	StatusExited  = "exited"
)

// ExitCodeError is reported when waiting on the process failed for a reason
// other than a normal exit.
const ExitCodeError = -1

var (
	// ErrNotFound is returned by Kill for an unknown tracking id.
	ErrNotFound = errors.New("process not found")
	// ErrClosed is returned once Shutdown has run.
	ErrClosed = errors.New("supervisor is shut down")
)

// entry is the supervisor-owned state of one launch. Only the event loop
// touches it.
type entry struct {
	rec     Record
	profile profile.Profile
	cmd     *exec.Cmd
}

func (e *entry) snapshot() Record { return e.rec }

// exitOutcome classifies the result of cmd.Wait. A nil code means the process
// was terminated by a signal. A non-nil fail is a runtime wait failure.
func exitOutcome(ps *os.ProcessState, err error) (code *int, reason string, fail error) {
	var ee *exec.ExitError
	switch {
	case err == nil, errors.As(err, &ee), errors.Is(err, exec.ErrWaitDelay):
		if ps == nil {
			c := ExitCodeError
			return &c, bridge.ReasonError, err
		}
		if c := ps.ExitCode(); c >= 0 {
			return &c, bridge.ReasonExited, nil
		}
		return nil, bridge.ReasonExited, nil
	default:
		c := ExitCodeError
		return &c, bridge.ReasonError, err
	}
}
