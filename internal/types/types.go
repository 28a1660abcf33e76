// Package types defines the domain and wire shapes shared across the space
// reconciliation engine: tabs, sessions, window geometry, and the read-only
// view handed back to the popup/switcher UI.
package types

import "time"

// HistoryMax bounds how many recently-closed tabs a session remembers.
const HistoryMax = 200

// Tab is the subset of a browser tab this system actually uses. Raw platform
// tab objects are never returned across the reconciliation boundary
// unconverted.
type Tab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	Pinned     bool   `json:"pinned"`
}

// WindowBounds is the on-screen geometry of a browser window, persisted so a
// restored session can reopen in the same place.
type WindowBounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Session is the durable (or, absent an ID, temporary) record behind a space.
// WindowID is deliberately not a column of the store's sessions table — it is
// runtime-only, cleared on every restart.
type Session struct {
	ID           *int64
	Name         *string
	SessionHash  uint32
	Tabs         []Tab
	History      []Tab
	LastAccess   time.Time
	WindowBounds *WindowBounds
	WindowID     *int
}

// IsDurable reports whether the session has been assigned a store-side id.
func (s *Session) IsDurable() bool {
	return s != nil && s.ID != nil
}

// IsOpen reports whether the session is currently bound to a live window.
func (s *Session) IsOpen() bool {
	return s != nil && s.WindowID != nil
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// registry's lock: slices and pointer fields are copied, so mutating the
// clone never corrupts the registry's authoritative entry.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.ID != nil {
		id := *s.ID
		clone.ID = &id
	}
	if s.Name != nil {
		name := *s.Name
		clone.Name = &name
	}
	if s.WindowID != nil {
		wid := *s.WindowID
		clone.WindowID = &wid
	}
	if s.WindowBounds != nil {
		bounds := *s.WindowBounds
		clone.WindowBounds = &bounds
	}
	clone.Tabs = append([]Tab(nil), s.Tabs...)
	clone.History = append([]Tab(nil), s.History...)
	return &clone
}

// SpaceView is the read-only wire shape returned to the UI for a session:
// identical in substance to spec's Space view, with presence modeled by Go
// nil rather than the source's "false" sentinel. The api layer is the only
// place that re-serializes a nil back to the wire's false convention.
type SpaceView struct {
	SessionID *int64  `json:"sessionId"`
	WindowID  *int    `json:"windowId"`
	Name      *string `json:"name"`
	Tabs      []Tab   `json:"tabs"`
	History   []Tab   `json:"history,omitempty"`
}

// ViewOf builds the wire view for a session, nil-safe.
func ViewOf(s *Session) SpaceView {
	if s == nil {
		return SpaceView{}
	}
	return SpaceView{
		SessionID: s.ID,
		WindowID:  s.WindowID,
		Name:      s.Name,
		Tabs:      s.Tabs,
		History:   s.History,
	}
}
