// Package urlsniff finds the local web UI address announced by the agent and
// opens it in the user's browser.
package urlsniff

import (
	"io"
	"regexp"
	"strings"

	"github.com/pkg/browser"
)

var loopbackRe = regexp.MustCompile(`(?i)https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\]):\d+(?:/[^\s"'<>]*)?`)

// Find returns the first loopback HTTP(S) URL in text.
func Find(text string) (string, bool) {
	m := loopbackRe.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.TrimRight(m, ".,;:)]}"), true
}

// Opener opens a URL outside the launcher.
type Opener interface {
	Open(url string) error
}

// BrowserOpener opens URLs with the desktop's default browser.
type BrowserOpener struct{}

func init() {
	// keep xdg-open / open chatter out of the launcher's own output
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

func (BrowserOpener) Open(url string) error { return browser.OpenURL(url) }

// NopOpener ignores every request; used when auto-open is disabled.
type NopOpener struct{}

func (NopOpener) Open(string) error { return nil }

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(url string) error

func (f OpenerFunc) Open(url string) error { return f(url) }
