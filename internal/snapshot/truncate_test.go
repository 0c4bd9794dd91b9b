package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"unicode/utf8"
)

func TestClipHTML(t *testing.T) {
	t.Run("within_limit", func(t *testing.T) {
		src := []byte("<p>ok</p>")
		want := sha256.Sum256(src)
		got := clipHTML(src, len(src))
		if got.truncated || string(got.data) != string(src) {
			t.Fatalf("clipHTML() = %+v; want untouched source", got)
		}
		if got.sha256 != hex.EncodeToString(want[:]) {
			t.Fatalf("clipHTML().sha256 = %q; want digest of the source", got.sha256)
		}
		if got.origLen != len(src) {
			t.Fatalf("clipHTML().origLen = %d; want %d", got.origLen, len(src))
		}
	})

	t.Run("zero_limit_disables_cap", func(t *testing.T) {
		got := clipHTML([]byte("abcdef"), 0)
		if got.truncated {
			t.Fatalf("clipHTML(0).truncated = true; want false")
		}
	})

	t.Run("ascii_cut", func(t *testing.T) {
		src := []byte("hello world")
		want := sha256.Sum256(src)
		got := clipHTML(src, 5)
		if !got.truncated || string(got.data) != "hello" {
			t.Fatalf("clipHTML() = %q truncated=%v; want %q truncated", got.data, got.truncated, "hello")
		}
		if got.origLen != len(src) || got.sha256 != hex.EncodeToString(want[:]) {
			t.Fatalf("clipHTML() = len %d sha %q; want full-source len and digest", got.origLen, got.sha256)
		}
	})

	t.Run("keeps_rune_boundaries", func(t *testing.T) {
		src := []byte("Exportação concluída")
		for max := 1; max < len(src); max++ {
			got := clipHTML(src, max)
			if !utf8.Valid(got.data) {
				t.Fatalf("clipHTML(%d) = %q; want valid UTF-8", max, got.data)
			}
			if len(got.data) > max || len(got.data) < max-utf8.UTFMax+1 {
				t.Fatalf("clipHTML(%d) kept %d bytes", max, len(got.data))
			}
		}
	})
}
