package change

import (
	"strconv"
	"unicode/utf16"
)

// fingerprintSeparator joins the old and new snapshot before hashing.
const fingerprintSeparator = '|'

// Fingerprint returns a short deterministic digest of an (old, new) snapshot
// pair: a 32-bit multiply-by-31 rolling hash over the UTF-16 code units of
// old + "|" + new, rendered in base 36. It identifies a change for logging
// and downstream deduplication; it is not collision-free.
func Fingerprint(old, new Snapshot) string {
	var h int32
	feed := func(s Snapshot) {
		for _, u := range utf16.Encode([]rune(string(s))) {
			h = h*31 + int32(u)
		}
	}
	feed(old)
	h = h*31 + fingerprintSeparator
	feed(new)
	return strconv.FormatInt(int64(h), 36)
}
