package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestHelpListsCommands(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	if err := root.Execute(); err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, name := range []string{"serve", "launch", "ps", "kill", "logs", "profiles", "env", "history"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("help missing %q:\n%s", name, out.String())
		}
	}
}

func TestProfilesAddRequiresModel(t *testing.T) {
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--api-url", "http://127.0.0.1:1", "profiles", "add", "--name", "x"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "model") {
		t.Fatalf("want required flag error, got %v", err)
	}
}
