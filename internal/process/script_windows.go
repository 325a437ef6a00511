//go:build windows

package process

import "os/exec"

const hostFlavor = flavorBatch

// scriptCommand runs a launch script through cmd.exe.
func scriptCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}
