package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/learning152/ui-tars-launcher/pkg/client"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvent writes one event in a line-oriented form. When id is set, events
// for other processes are skipped. It reports whether the event is the exit of id.
func printEvent(w io.Writer, e client.Event, id string) bool {
	switch e.Name {
	case "logOutput":
		l, err := e.Log()
		if err != nil || (id != "" && l.ProcessID != id) {
			return false
		}
		prefix := ""
		if id == "" && l.ProcessID != "" {
			prefix = l.ProcessID + " "
		}
		_, _ = fmt.Fprintf(w, "%s[%s] %s\n", prefix, l.Kind, l.Text)
	case "processStarted", "processUpdated":
		p, err := e.Process()
		if err != nil || (id != "" && p.ID != id) {
			return false
		}
		verb := "started"
		if e.Name == "processUpdated" {
			verb = "updated"
		}
		_, _ = fmt.Fprintf(w, "process %s %s (pid %d)", p.ID, verb, p.PID)
		if p.URL != "" {
			_, _ = fmt.Fprintf(w, " %s", p.URL)
		}
		_, _ = fmt.Fprintln(w)
	case "processExited":
		x, err := e.Exit()
		if err != nil || (id != "" && x.TrackingID != id) {
			return false
		}
		code := "none"
		if x.ExitCode != nil {
			code = fmt.Sprint(*x.ExitCode)
		}
		_, _ = fmt.Fprintf(w, "process %s exited: %s (code %s)\n", x.TrackingID, x.Reason, code)
		return id != ""
	}
	return false
}

// maskKey keeps the last four characters of an API key.
func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func versionOr(installed bool, version string) string {
	if !installed {
		return "not installed"
	}
	if version == "" {
		return "installed"
	}
	return version
}
