// Package envcheck reports whether the agent's runtime prerequisites are
// installed and installs the agent CLI through npm.
package envcheck

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/learning152/ui-tars-launcher/internal/normalize"
	"github.com/learning152/ui-tars-launcher/internal/textenc"
)

// InstallPackage is the npm package providing the agent CLI.
const InstallPackage = "@agent-tars/cli@latest"

// Status is the result of Check.
type Status struct {
	NodeInstalled      bool   `json:"nodeInstalled"`
	NodeVersion        string `json:"nodeVersion,omitempty"`
	AgentTarsInstalled bool   `json:"agentTarsInstalled"`
	AgentTarsVersion   string `json:"agentTarsVersion,omitempty"`
}

// Ready reports whether the agent can be launched.
func (s Status) Ready() bool { return s.NodeInstalled && s.AgentTarsInstalled }

// Runner executes an external command. Output of long-running commands is
// written to out as it is produced.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Stream(ctx context.Context, out io.Writer, name string, args ...string) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204
	return exec.CommandContext(ctx, name, args...).Output()
}

func (ExecRunner) Stream(ctx context.Context, out io.Writer, name string, args ...string) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// Checker inspects and installs the agent toolchain.
type Checker struct {
	Runner  Runner
	Agent   string // agent binary, defaults to agent-tars
	Decoder *textenc.Resolver
	Logger  *slog.Logger
}

func (c *Checker) runner() Runner {
	if c.Runner == nil {
		return ExecRunner{}
	}
	return c.Runner
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Check runs `node --version` and `<agent> --version`. A missing or failing
// binary is reported as not installed, never as an error.
func (c *Checker) Check(ctx context.Context) Status {
	var st Status
	if v, ok := c.version(ctx, "node"); ok {
		st.NodeInstalled, st.NodeVersion = true, v
	}
	agent := c.Agent
	if agent == "" {
		agent = "agent-tars"
	}
	if v, ok := c.version(ctx, agent); ok {
		st.AgentTarsInstalled, st.AgentTarsVersion = true, v
	}
	return st
}

func (c *Checker) version(ctx context.Context, bin string) (string, bool) {
	out, err := c.runner().Output(ctx, bin, "--version")
	if err != nil {
		c.logger().Debug("version check failed", "bin", bin, "error", err)
		return "", false
	}
	return firstLine(string(out)), true
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Install runs `npm install -g @agent-tars/cli@latest`. Each cleaned output
// line is passed to emit as it arrives.
func (c *Checker) Install(ctx context.Context, emit func(line string)) error {
	if emit == nil {
		emit = func(string) {}
	}
	w := &lineWriter{decoder: c.Decoder, emit: emit}
	err := c.runner().Stream(ctx, w, "npm", "install", "-g", InstallPackage)
	w.flush()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return fmt.Errorf("npm install exited with code %d", ee.ExitCode())
		}
		return fmt.Errorf("npm install: %w", err)
	}
	c.logger().Info("agent installed", "package", InstallPackage)
	return nil
}

// lineWriter splits a byte stream into cleaned lines.
type lineWriter struct {
	decoder *textenc.Resolver
	emit    func(string)
	buf     bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := w.buf.Next(i + 1)
		w.send(line)
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if w.buf.Len() > 0 {
		w.send(w.buf.Bytes())
		w.buf.Reset()
	}
}

func (w *lineWriter) send(raw []byte) {
	var text string
	if w.decoder != nil {
		text = w.decoder.Decode(raw)
	} else {
		text = string(raw)
	}
	sc := bufio.NewScanner(strings.NewReader(normalize.Clean(text)))
	for sc.Scan() {
		w.emit(sc.Text())
	}
}
