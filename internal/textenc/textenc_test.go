package textenc

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func mustResolver(t *testing.T, name string) *Resolver {
	t.Helper()
	r, err := New(name)
	if err != nil {
		t.Fatalf("New(%q): %v", name, err)
	}
	return r
}

func TestNewUnknownEncoding(t *testing.T) {
	if _, err := New("definitely-not-a-charset"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestNewCanonicalName(t *testing.T) {
	r := mustResolver(t, "GBK")
	if r.Name != "gbk" {
		t.Fatalf("expected canonical gbk, got %q", r.Name)
	}
	if d := mustResolver(t, ""); d.Name != DefaultEncoding() {
		t.Fatalf("empty name should select default, got %q", d.Name)
	}
}

func TestDecodeGBKClean(t *testing.T) {
	r := mustResolver(t, "gbk")
	src := "服务已启动 ready"
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(src))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := r.Decode(b); got != src {
		t.Fatalf("got %q want %q", got, src)
	}
}

func TestDecodeFallsBackToUTF8(t *testing.T) {
	// ISO-2022-JP rejects every byte above 0x7f, so UTF-8 text decodes as a
	// run of replacement characters under it.
	r := mustResolver(t, "iso-2022-jp")
	src := "启动 🚀 done"
	got := r.Decode([]byte(src))
	if got != src {
		t.Fatalf("expected utf-8 fallback %q, got %q", src, got)
	}
}

func TestDecodeKeepsPrimaryWhenBothGarbled(t *testing.T) {
	r := mustResolver(t, "utf-8")
	b := []byte{0xff, 0xff, 0xff, 0xff, 'x'}
	got := r.Decode(b)
	if !Garbled(got) || !strings.HasSuffix(got, "x") {
		t.Fatalf("expected garbled primary result, got %q", got)
	}
}

func TestDecodeASCIIIdentity(t *testing.T) {
	for _, name := range []string{"gbk", "utf-8", "windows-1252"} {
		r := mustResolver(t, name)
		if got := r.Decode([]byte("plain ascii 123\n")); got != "plain ascii 123\n" {
			t.Fatalf("%s: got %q", name, got)
		}
	}
}

func TestGarbled(t *testing.T) {
	if Garbled("a\uFFFD\uFFFDb") {
		t.Fatal("two replacement chars should not count as garbled")
	}
	if !Garbled("a\uFFFD\uFFFD\uFFFDb") {
		t.Fatal("three replacement chars should count as garbled")
	}
}
