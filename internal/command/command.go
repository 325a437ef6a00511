// Package command turns a launch profile into the shell command line that
// starts the agent, in an executable form and a display form with the API key
// masked.
package command

import (
	"runtime"
	"strings"

	"github.com/learning152/ui-tars-launcher/internal/profile"
)

// Mask replaces the API key in the display form.
const Mask = "********"

// DefaultAgent is the agent CLI invoked when Options.Agent is empty.
const DefaultAgent = "agent-tars"

// Shell selects the flavour of the conda activation clause.
type Shell int

const (
	// ShellCmd emits a cmd.exe clause: call conda activate <env>
	ShellCmd Shell = iota
	// ShellPOSIX emits a clause that works in /bin/sh after loading the conda hook.
	ShellPOSIX
)

type Options struct {
	Shell Shell
	Agent string
}

// DefaultOptions picks the shell flavour of the running OS.
func DefaultOptions() Options {
	if runtime.GOOS == "windows" {
		return Options{Shell: ShellCmd, Agent: DefaultAgent}
	}
	return Options{Shell: ShellPOSIX, Agent: DefaultAgent}
}

// Command holds the two renderings of one launch.
type Command struct {
	Exec    string `json:"-"`
	Display string `json:"display"`
}

// Build renders p. Extra args are appended verbatim, after a single space.
func Build(p profile.Profile, opts Options) Command {
	agent := opts.Agent
	if agent == "" {
		agent = DefaultAgent
	}

	var prefix []string
	if p.UseConda {
		switch opts.Shell {
		case ShellPOSIX:
			prefix = []string{`eval "$(conda shell.posix hook)"`, "&&", "conda", "activate", p.CondaEnvName, "&&"}
		default:
			prefix = []string{"call", "conda", "activate", p.CondaEnvName, "&&"}
		}
	}

	render := func(key string) string {
		parts := append([]string(nil), prefix...)
		parts = append(parts, agent,
			"--provider", string(p.Provider),
			"--model", p.Model,
			"--apiKey", key)
		if p.ExtraArgs != "" {
			parts = append(parts, p.ExtraArgs)
		}
		return strings.Join(parts, " ")
	}

	return Command{Exec: render(p.APIKey), Display: render(Mask)}
}
