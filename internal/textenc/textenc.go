// Package textenc decodes raw console output. Bytes are decoded with the
// platform's legacy code page first; when that result looks garbled the UTF-8
// reading is preferred. It is a heuristic, not an encoding detector, and it
// never fails.
package textenc

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// garbled matches three or more consecutive replacement characters.
var garbled = regexp.MustCompile(`\x{FFFD}{3,}`)

// Garbled reports whether s contains a run of at least three U+FFFD.
func Garbled(s string) bool {
	return garbled.MatchString(s)
}

// DefaultEncoding returns the console code page assumed for the running OS.
func DefaultEncoding() string {
	if runtime.GOOS == "windows" {
		return "gbk"
	}
	return "utf-8"
}

// Resolver holds the primary (legacy) encoding.
type Resolver struct {
	Name    string
	Primary encoding.Encoding
}

// New resolves name through the WHATWG label table. An empty name selects
// DefaultEncoding.
func New(name string) (*Resolver, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultEncoding()
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown console encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	if canonical == "" {
		canonical = name
	}
	return &Resolver{Name: canonical, Primary: enc}, nil
}

// Decode converts b to text. Invalid input is replaced, never rejected.
func (r *Resolver) Decode(b []byte) string {
	primary := decodeWith(r.Primary, b)
	if !Garbled(primary) {
		return primary
	}
	fallback := decodeWith(unicode.UTF8, b)
	if !Garbled(fallback) {
		return fallback
	}
	return primary
}

func decodeWith(enc encoding.Encoding, b []byte) string {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		// decoders substitute U+FFFD for invalid input, so this is a hard failure
		return strings.Repeat("\uFFFD", 3)
	}
	return string(out)
}
