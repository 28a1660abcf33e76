// Package fake is an in-memory platform.Client double, used by reconcile's
// tests and by cmd/spacesd when no real browser host is attached.
package fake

import (
	"context"
	"sync"

	"github.com/codedread/spaces/internal/platform"
)

// Client is a controllable in-memory platform.Client. Tests drive it
// directly (AddWindow, Fire) instead of waiting on real browser events.
type Client struct {
	mu      sync.Mutex
	windows map[int]*platform.Window
	events  chan platform.Event
}

// New creates an empty fake platform with no windows and a buffered event
// channel large enough for test bursts.
func New() *Client {
	return &Client{
		windows: make(map[int]*platform.Window),
		events:  make(chan platform.Event, 256),
	}
}

// AddWindow registers (or replaces) a live window.
func (c *Client) AddWindow(w *platform.Window) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[w.ID] = w
}

// RemoveWindow deletes a window, simulating the platform forgetting it.
func (c *Client) RemoveWindow(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, id)
}

// SetTabs replaces the live tab list of a window in place.
func (c *Client) SetTabs(windowID int, tabs []platform.Tab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[windowID]; ok {
		w.Tabs = tabs
	}
}

// Fire pushes an event onto the stream a real host would deliver
// asynchronously. Blocks if the test's consumer hasn't drained the buffer,
// which surfaces a test bug rather than hiding it.
func (c *Client) Fire(evt platform.Event) {
	c.events <- evt
}

// Close closes the event stream, simulating platform shutdown.
func (c *Client) Close() {
	close(c.events)
}

// GetWindow implements platform.Client.
func (c *Client) GetWindow(_ context.Context, id int) (*platform.Window, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[id]
	return w, ok, nil
}

// ListWindows implements platform.Client.
func (c *Client) ListWindows(_ context.Context) ([]*platform.Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*platform.Window, 0, len(c.windows))
	for _, w := range c.windows {
		out = append(out, w)
	}
	return out, nil
}

// Events implements platform.Client.
func (c *Client) Events() <-chan platform.Event {
	return c.events
}
