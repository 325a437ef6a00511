//go:build !windows

package process

import "os/exec"

const hostFlavor = flavorSh

// scriptCommand runs a launch script through the POSIX shell.
func scriptCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", script)
}
