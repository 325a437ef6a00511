package envcheck

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeRunner struct {
	versions map[string]string
	install  []string
	err      error
	calls    []string
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	v, ok := f.versions[name]
	if !ok {
		return nil, errors.New("executable file not found in $PATH")
	}
	return []byte(v), nil
}

func (f *fakeRunner) Stream(_ context.Context, out io.Writer, name string, args ...string) error {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	for _, chunk := range f.install {
		if _, err := out.Write([]byte(chunk)); err != nil {
			return err
		}
	}
	return f.err
}

func TestCheckReportsVersions(t *testing.T) {
	r := &fakeRunner{versions: map[string]string{
		"node":       "v20.11.1\n",
		"agent-tars": "0.2.5\r\nextra\n",
	}}
	c := &Checker{Runner: r}
	st := c.Check(context.Background())
	if !st.NodeInstalled || st.NodeVersion != "v20.11.1" {
		t.Fatalf("unexpected node status %+v", st)
	}
	if !st.AgentTarsInstalled || st.AgentTarsVersion != "0.2.5" {
		t.Fatalf("unexpected agent status %+v", st)
	}
	if !st.Ready() {
		t.Fatalf("expected ready")
	}
	if r.calls[0] != "node --version" || r.calls[1] != "agent-tars --version" {
		t.Fatalf("unexpected version checks %v", r.calls)
	}
}

func TestCheckMissingBinaries(t *testing.T) {
	c := &Checker{Runner: &fakeRunner{versions: map[string]string{"node": "v18.0.0"}}}
	st := c.Check(context.Background())
	if !st.NodeInstalled || st.AgentTarsInstalled || st.AgentTarsVersion != "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Ready() {
		t.Fatalf("should not be ready without the agent")
	}
}

func TestInstallStreamsCleanLines(t *testing.T) {
	r := &fakeRunner{install: []string{
		"\x1b[32madded 12\x1b[0m pack",
		"ages\n\n\nnpm notice done\n",
		"tail without newline",
	}}
	var lines []string
	c := &Checker{Runner: r}
	if err := c.Install(context.Background(), func(l string) { lines = append(lines, l) }); err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{"added 12 packages", "npm notice done", "tail without newline"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", lines, want)
	}
	if r.calls[0] != "npm install -g "+InstallPackage {
		t.Fatalf("unexpected command %q", r.calls[0])
	}
}

func TestInstallFailure(t *testing.T) {
	c := &Checker{Runner: &fakeRunner{err: errors.New("EACCES")}}
	err := c.Install(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "EACCES") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
