// Package sessionhash derives the stable 32-bit fingerprint compared during
// reconciliation to rematch a live window against a previously saved space.
package sessionhash

import (
	"unicode/utf16"

	"github.com/codedread/spaces/internal/types"
)

// Clean is the URL canonicalization a hash is computed against. Injected
// rather than imported directly so sessionhash stays a leaf package with no
// dependency on urlnorm's extension-id configuration.
type Clean func(raw string) string

// Hash concatenates the cleaned URL of each tab in order, then folds the
// UTF-16 code-unit sequence with the classic djb2-variant recurrence
// h <- (h<<5 - h) + c, truncating to a signed 32-bit register after every
// step (Go's int32 arithmetic wraps the same way), and returns the absolute
// value of the final register. The algorithm is preserved bit-exact:
// stored session hashes are compared across process restarts and upgrades.
func Hash(tabs []types.Tab, clean Clean) uint32 {
	var concatenated []rune
	for _, tab := range tabs {
		concatenated = append(concatenated, []rune(clean(tab.URL))...)
	}

	units := utf16.Encode(concatenated)

	var h int32
	for _, unit := range units {
		h = (h << 5) - h + int32(unit)
	}

	if h < 0 {
		h = -h
	}
	return uint32(h)
}
