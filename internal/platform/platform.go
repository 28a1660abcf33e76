// Package platform abstracts the browser host the reconciliation engine
// runs inside: window/tab queries and the asynchronous event stream. A real
// browser extension host implements Client; this repo ships platform/fake as
// a deterministic test double.
package platform

import (
	"context"
	"strings"

	"github.com/codedread/spaces/internal/types"
)

// WindowKind classifies a window for the internal-window filter applied
// during event coalescing.
type WindowKind string

const (
	KindNormal WindowKind = "normal"
	KindPopup  WindowKind = "popup"
	KindPanel  WindowKind = "panel"
	KindApp    WindowKind = "app"
)

// TabStatus mirrors the platform's load-status field; only "complete"
// matters to the engine.
type TabStatus string

const (
	StatusLoading  TabStatus = "loading"
	StatusComplete TabStatus = "complete"
)

// Tab is the raw platform tab shape, richer than types.Tab. It is converted
// to types.Tab at the reconciliation boundary and never returned upward
// unconverted.
type Tab struct {
	ID         int
	WindowID   int
	URL        string
	Title      string
	FavIconURL string
	Pinned     bool
	Status     TabStatus
}

// ToDomain narrows a platform Tab to the fields the domain model keeps.
func (t Tab) ToDomain() types.Tab {
	return types.Tab{
		ID:         t.ID,
		URL:        t.URL,
		Title:      t.Title,
		FavIconURL: t.FavIconURL,
		Pinned:     t.Pinned,
	}
}

// Window is the raw platform window shape: an id plus its populated tabs.
type Window struct {
	ID   int
	Kind WindowKind
	Tabs []Tab
}

// TabsAsDomain converts every tab on the window to the domain shape, in
// order.
func (w *Window) TabsAsDomain() []types.Tab {
	out := make([]types.Tab, len(w.Tabs))
	for i, t := range w.Tabs {
		out[i] = t.ToDomain()
	}
	return out
}

// EventKind discriminates the platform event stream, one case per handler in
// the reconciliation engine's event table.
type EventKind int

const (
	EventTabCreated EventKind = iota
	EventTabUpdated
	EventTabRemoved
	EventTabMoved
	EventWindowFocusChanged
	EventWindowRemoved
	EventWindowBoundsChanged
)

// TabChange carries the fields that changed on a tab-updated event; a zero
// value field means "unchanged".
type TabChange struct {
	URL    string
	Status TabStatus
}

// RemovalInfo accompanies a tab-removed event.
type RemovalInfo struct {
	WindowID        int
	IsWindowClosing bool
}

// Event is the single envelope delivered over Client.Events(); only the
// fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind
	Tab      Tab
	TabID    int
	WindowID int
	Change   TabChange
	Removal  RemovalInfo
	Bounds   types.WindowBounds
}

// Client is the narrow, dependency-injected boundary to the browser
// platform: window/tab queries plus the event channel. Modeled after the
// teacher's KernelClient pattern — small enough to fake trivially in tests.
type Client interface {
	// GetWindow returns the live window, populated with its current tabs.
	// ok is false if the window no longer exists (a stale handle).
	GetWindow(ctx context.Context, id int) (win *Window, ok bool, err error)
	// ListWindows enumerates every live window, populated.
	ListWindows(ctx context.Context) ([]*Window, error)
	// Events returns the channel the engine drains for the life of the
	// process. Closed when the platform host shuts down.
	Events() <-chan Event
}

// IsInternal reports whether a window should be excluded from reconciliation
// entirely: a single tab whose URL contains the extension id, or a
// non-normal window kind (popup/panel/app).
func IsInternal(w *Window, extensionID string) bool {
	if w.Kind == KindPopup || w.Kind == KindPanel || w.Kind == KindApp {
		return true
	}
	if len(w.Tabs) == 1 && extensionID != "" &&
		strings.Contains(w.Tabs[0].URL, extensionID) {
		return true
	}
	return false
}
