//go:build !windows

package process

import (
	"errors"
	"fmt"
	"syscall"

	ps "github.com/shirou/gopsutil/v4/process"
)

// killTree SIGKILLs the process group led by pid, then any descendant that
// moved to another group or session.
func killTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	// collect before killing; once the leader dies the parent links are gone
	stragglers := descendants(int32(pid))

	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	for _, p := range stragglers {
		_ = p.Kill()
	}
	if err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

func descendants(pid int32) []*ps.Process {
	root, err := ps.NewProcess(pid)
	if err != nil {
		return nil
	}
	var out []*ps.Process
	queue := []*ps.Process{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := cur.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}
