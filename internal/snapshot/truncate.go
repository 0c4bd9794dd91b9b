package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode/utf8"
)

// clipped is a page source cut down to the store's size cap.
type clipped struct {
	data      []byte
	truncated bool
	origLen   int
	sha256    string
}

// clipHTML keeps at most maxBytes of src without splitting a UTF-8 sequence.
// The digest covers the full source.
func clipHTML(src []byte, maxBytes int) clipped {
	sum := sha256.Sum256(src)
	c := clipped{data: src, origLen: len(src), sha256: hex.EncodeToString(sum[:])}
	if maxBytes <= 0 || len(src) <= maxBytes {
		return c
	}
	cut := maxBytes
	for cut > 0 && cut > maxBytes-utf8.UTFMax && !utf8.RuneStart(src[cut]) {
		cut--
	}
	c.data, c.truncated = src[:cut], true
	return c
}
