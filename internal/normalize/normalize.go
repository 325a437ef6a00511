// Package normalize cleans decoded console output for display.
package normalize

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	csiRe      = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Clean strips ANSI sequences, collapses blank runs, trims every line and
// drops the empty ones. Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	s = csiRe.ReplaceAllString(s, "")
	s = ansi.Strip(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
