// Package urlnorm canonicalizes a tab URL for hashing and history equality.
package urlnorm

import "strings"

// newTabFilter is matched verbatim, embedded space included. Real new-tab
// URLs are "chrome://newtab/" (no space), so this filter never actually
// fires — but stored session hashes were computed against this exact
// behavior, so it is kept rather than corrected.
const newTabFilter = "chrome:// newtab/"

const (
	suspendedMarker = "suspended.html"
	uriParam        = "uri="
)

// Cleaner canonicalizes URLs against a specific running extension id, which
// is why it is a configured value rather than a package-level constant: two
// engines in the same process (tests, multi-profile tooling) may run as
// different extension ids.
type Cleaner struct {
	ExtensionID string
}

// New returns a Cleaner bound to extensionID.
func New(extensionID string) *Cleaner {
	return &Cleaner{ExtensionID: extensionID}
}

// Clean applies the five ordered rules. An empty result means "ignore this
// URL for hashing/history".
func (c *Cleaner) Clean(raw string) string {
	if raw == "" {
		return ""
	}

	// Substring match anywhere in the URL, not just the origin — preserved
	// verbatim even though it flags any URL whose path or query happens to
	// contain the extension id.
	if c.ExtensionID != "" && strings.Contains(raw, c.ExtensionID) {
		return ""
	}

	if strings.Contains(raw, newTabFilter) {
		return ""
	}

	if strings.Contains(raw, suspendedMarker) {
		if idx := strings.Index(raw, uriParam); idx >= 0 {
			raw = raw[idx+len(uriParam):]
		}
	}

	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		raw = raw[:idx]
	}
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}

	return raw
}
