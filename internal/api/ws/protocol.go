// Package ws implements the control API's WebSocket message protocol: a
// single long-lived connection per browser extension instance, dispatching
// a tagged action envelope to the reconciliation engine and the session
// registry, and replying with the updated Space view (or its "false"
// sentinel) per action.
package ws

import (
	"encoding/json"
	"fmt"
)

// inbound is the wire envelope for every message the extension sends. Every
// action uses a subset of these fields; unused fields are left zero.
type inbound struct {
	Action    string          `json:"action"`
	Name      string          `json:"name"`
	URL       string          `json:"url"`
	TabURL    string          `json:"tab_url"`
	TabID     json.RawMessage `json:"tab_id"`
	SessionID json.RawMessage `json:"sid"`
	WindowID  json.RawMessage `json:"wid"`
	DeleteOld json.RawMessage `json:"delete_old"`
	URLList   []string        `json:"url_list"`
	Space     json.RawMessage `json:"space"`
}

// canonBool parses the wire's "false"/"true"/0/1/bool-as-JSON forms into a
// real bool, defaulting to false for an absent or empty field.
func canonBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "true" || s == "1"
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}

// canonInt64 parses a numeric-or-numeric-string id field. ok is false for an
// absent, empty, or non-numeric field.
func canonInt64(raw json.RawMessage) (id int64, ok bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		var parsed int64
		if _, err := fmt.Sscanf(s, "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// canonInt is canonInt64 narrowed to int, for platform window/tab ids.
func canonInt(raw json.RawMessage) (int, bool) {
	n, ok := canonInt64(raw)
	return int(n), ok
}

// outbound error codes. NameConflict gets a structured shape rather than the
// wire's bare "false" so the extension can offer "overwrite?" without a
// second round trip; every other failure mode degrades to literal false,
// matching the original protocol.
type errPayload struct {
	Error      string `json:"error"`
	ExistingID int64  `json:"existingId,omitempty"`
}
