//go:build !windows

package process

import (
	"os/exec"
	"testing"
)

func TestConfigureSysProcAttrSetsProcessGroup(t *testing.T) {
	cmd := exec.Command("true")
	configureSysProcAttr(cmd)
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("SysProcAttr Setpgid not set")
	}
}

func TestScriptCommandUsesShell(t *testing.T) {
	cmd := scriptCommand("/tmp/launch-1.sh")
	if cmd.Path != "/bin/sh" || len(cmd.Args) != 2 || cmd.Args[1] != "/tmp/launch-1.sh" {
		t.Fatalf("unexpected command %v", cmd.Args)
	}
}
