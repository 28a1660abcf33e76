package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedread/spaces/internal/errs"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/platform"
	"github.com/codedread/spaces/internal/platform/fake"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/sessionhash"
	"github.com/codedread/spaces/internal/store"
	"github.com/codedread/spaces/internal/types"
	"github.com/codedread/spaces/internal/urlnorm"
)

// countingMetrics records how many times each hook fired, letting tests
// assert coalescing and close-dedup behavior without touching timer
// internals directly.
type countingMetrics struct {
	mu                sync.Mutex
	binds             int
	rebinds           int
	closes            int
	windowEventsDone  int
	storeDegradations int
	sessionsActive    int
	sessionsDurable   int
	eventQueueCount   int
}

func (m *countingMetrics) RecordBind()         { m.mu.Lock(); m.binds++; m.mu.Unlock() }
func (m *countingMetrics) RecordRebind()       { m.mu.Lock(); m.rebinds++; m.mu.Unlock() }
func (m *countingMetrics) RecordWindowClosed() { m.mu.Lock(); m.closes++; m.mu.Unlock() }
func (m *countingMetrics) RecordWindowEventHandled() {
	m.mu.Lock()
	m.windowEventsDone++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordStoreDegraded() { m.mu.Lock(); m.storeDegradations++; m.mu.Unlock() }
func (m *countingMetrics) SetSessionsActive(count int) {
	m.mu.Lock()
	m.sessionsActive = count
	m.mu.Unlock()
}
func (m *countingMetrics) SetSessionsDurable(count int) {
	m.mu.Lock()
	m.sessionsDurable = count
	m.mu.Unlock()
}
func (m *countingMetrics) SetEventQueueCount(count int) {
	m.mu.Lock()
	m.eventQueueCount = count
	m.mu.Unlock()
}

func (m *countingMetrics) snapshot() (binds, rebinds, closes, windowEvents int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binds, m.rebinds, m.closes, m.windowEventsDone
}

func newHarness(t *testing.T) (*Engine, *fake.Client, *store.Store, *registry.Registry, *countingMetrics) {
	t.Helper()
	logger := logging.NewDevelopment()
	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, logger)
	plat := fake.New()
	metrics := &countingMetrics{}

	eng := New(reg, st, plat, "abcdefextension", "1.0.0", logging.NewDevelopment(),
		WithMetrics(metrics), WithDebounce(15*time.Millisecond))
	return eng, plat, st, reg, metrics
}

func cleanHash(tabs []types.Tab) uint32 {
	c := urlnorm.New("abcdefextension")
	return sessionhash.Hash(tabs, c.Clean)
}

// Scenario 3: restart rebind.
func TestRestartRebind(t *testing.T) {
	eng, plat, st, reg, metrics := newHarness(t)
	ctx := context.Background()

	tabs := []types.Tab{{ID: 1, URL: "https://example.com"}}
	h := cleanHash(tabs)
	saved, ok := st.Create(ctx, &types.Session{SessionHash: h, Tabs: tabs, LastAccess: time.Now()})
	require.True(t, ok)

	plat.AddWindow(&platform.Window{ID: 9, Kind: platform.KindNormal, Tabs: []platform.Tab{{ID: 1, URL: "https://example.com", Status: platform.StatusComplete}}})

	require.NoError(t, eng.EnsureInitialized(ctx))

	bound, found := reg.LookupByWindowMemory(9)
	require.True(t, found)
	assert.Equal(t, *saved.ID, *bound.ID)

	all := reg.GetAll()
	assert.Len(t, all, 1, "no temporary session should have been created alongside the rematched durable one")

	binds, rebinds, _, _ := metrics.snapshot()
	assert.Equal(t, 1, binds)
	assert.Equal(t, 0, rebinds)
}

// Scenario 4: burst coalescing.
func TestBurstCoalescing(t *testing.T) {
	eng, plat, _, reg, metrics := newHarness(t)
	ctx := context.Background()

	plat.AddWindow(&platform.Window{ID: 3, Kind: platform.KindNormal, Tabs: []platform.Tab{{ID: 1, URL: "https://a.example", Status: platform.StatusComplete}}})
	require.NoError(t, eng.EnsureInitialized(ctx))

	plat.SetTabs(3, []platform.Tab{
		{ID: 1, URL: "https://a.example", Status: platform.StatusComplete},
		{ID: 2, URL: "https://b.example", Status: platform.StatusComplete},
	})

	for i := 0; i < 50; i++ {
		eng.enqueueWindowEvent(3)
	}

	time.Sleep(80 * time.Millisecond)

	_, _, _, windowEvents := metrics.snapshot()
	assert.Equal(t, 1, windowEvents, "fifty enqueues within the debounce window must collapse to one handler run")

	bound, found := reg.LookupByWindowMemory(3)
	require.True(t, found)
	assert.Len(t, bound.Tabs, 2, "the session must reflect the final live window state, not an intermediate one")
}

// Scenario 5: name conflict confirmation.
func TestNameConflictConfirmation(t *testing.T) {
	eng, _, st, _, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, eng.EnsureInitialized(ctx))

	a, ok := st.Create(ctx, &types.Session{Name: store.NamePointerOrNil("work"), LastAccess: time.Now()})
	require.True(t, ok)
	b, ok := st.Create(ctx, &types.Session{Name: store.NamePointerOrNil("home"), LastAccess: time.Now()})
	require.True(t, ok)
	eng.reg.Insert(a)
	eng.reg.Insert(b)

	_, err := eng.UpdateSessionName(ctx, *b.ID, "Work", false)
	require.Error(t, err)
	var conflict *errs.NameConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, *a.ID, conflict.ExistingID)

	stillB, ok := st.FetchByID(ctx, *b.ID)
	require.True(t, ok)
	assert.Equal(t, "home", *stillB.Name)

	renamed, err := eng.UpdateSessionName(ctx, *b.ID, "Work", true)
	require.NoError(t, err)
	assert.Equal(t, "Work", *renamed.Name)

	_, ok = st.FetchByID(ctx, *a.ID)
	assert.False(t, ok, "the old holder of the name must be deleted")
}

// Scenario 6: duplicate-close safety.
func TestDuplicateCloseSafety(t *testing.T) {
	eng, _, st, reg, metrics := newHarness(t)
	ctx := context.Background()

	wid := 11
	saved, ok := st.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)
	saved.WindowID = &wid
	reg.Insert(saved)

	eng.handleWindowRemoved(ctx, wid, true)
	eng.handleWindowRemoved(ctx, wid, true)

	assert.True(t, eng.isClosed(wid))
	_, _, closes, _ := metrics.snapshot()
	assert.Equal(t, 1, closes, "a second window-removed for an already-closed window must be a pure no-op")

	current, found := st.FetchByID(ctx, *saved.ID)
	require.True(t, found)
	assert.Nil(t, current.WindowID)
}

// For any save_new_session given a window already bound to a durable
// session, the operation fails and no registry change occurs.
func TestSaveNewSession_RejectsWindowBoundToDurableSession(t *testing.T) {
	eng, _, st, reg, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, eng.EnsureInitialized(ctx))

	wid := 4
	saved, ok := st.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)
	saved.WindowID = &wid
	reg.Insert(saved)

	before := reg.GetAll()

	_, err := eng.SaveNewSession(ctx, "new name", nil, &wid, nil, false)
	require.Error(t, err)
	var violation *errs.InvariantViolation
	require.ErrorAs(t, err, &violation)

	after := reg.GetAll()
	assert.Len(t, after, len(before))
}

func TestTabDetail(t *testing.T) {
	eng, _, st, reg, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, eng.EnsureInitialized(ctx))

	saved, ok := st.Create(ctx, &types.Session{
		Tabs:       []types.Tab{{ID: 42, URL: "https://x.example"}},
		LastAccess: time.Now(),
	})
	require.True(t, ok)
	reg.Insert(saved)

	tab, found := eng.TabDetail(42)
	require.True(t, found)
	assert.Equal(t, "https://x.example", tab.URL)

	_, found = eng.TabDetail(999)
	assert.False(t, found)
}

// HandleEvent is the actual entry point the platform event stream drives;
// these exercise it directly instead of only the private handlers it calls.
func TestHandleEventTabUpdatedAndRemoved(t *testing.T) {
	eng, plat, _, reg, _ := newHarness(t)
	ctx := context.Background()

	wid := 7
	plat.AddWindow(&platform.Window{ID: wid, Kind: platform.KindNormal, Tabs: []platform.Tab{
		{ID: 1, URL: "https://a.example", Status: platform.StatusComplete},
	}})
	require.NoError(t, eng.EnsureInitialized(ctx))

	plat.SetTabs(wid, []platform.Tab{
		{ID: 1, URL: "https://a.example", Status: platform.StatusComplete},
		{ID: 2, URL: "https://b.example", Status: platform.StatusComplete},
	})
	require.NoError(t, eng.HandleEvent(ctx, platform.Event{
		Kind: platform.EventTabUpdated,
		Tab:  platform.Tab{ID: 2, WindowID: wid, URL: "https://b.example", Status: platform.StatusComplete},
	}))
	time.Sleep(40 * time.Millisecond)

	bound, found := reg.LookupByWindowMemory(wid)
	require.True(t, found)
	assert.Len(t, bound.Tabs, 2, "a real tab-updated event dispatched through HandleEvent must coalesce into the session")

	plat.SetTabs(wid, []platform.Tab{
		{ID: 1, URL: "https://a.example", Status: platform.StatusComplete},
	})
	require.NoError(t, eng.HandleEvent(ctx, platform.Event{
		Kind:    platform.EventTabRemoved,
		TabID:   2,
		Removal: platform.RemovalInfo{WindowID: wid},
	}))
	time.Sleep(40 * time.Millisecond)

	bound, found = reg.LookupByWindowMemory(wid)
	require.True(t, found)
	assert.Len(t, bound.Tabs, 1, "a real tab-removed event dispatched through HandleEvent must coalesce into the session")
}

// A tab-updated or tab-removed event for an already-closed window must be
// discarded by HandleEvent's closed-set guard even though the platform only
// populates the per-kind Tab/Removal window id, not the redundant top-level
// Event.WindowID field.
func TestHandleEventDiscardsTabEventsForClosedWindow(t *testing.T) {
	eng, _, st, reg, metrics := newHarness(t)
	ctx := context.Background()

	wid := 12
	saved, ok := st.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)
	saved.WindowID = &wid
	reg.Insert(saved)

	eng.handleWindowRemoved(ctx, wid, true)
	require.True(t, eng.isClosed(wid))

	require.NoError(t, eng.HandleEvent(ctx, platform.Event{
		Kind: platform.EventTabUpdated,
		Tab:  platform.Tab{ID: 99, WindowID: wid, URL: "https://late.example", Status: platform.StatusComplete},
	}))
	require.NoError(t, eng.HandleEvent(ctx, platform.Event{
		Kind:    platform.EventTabRemoved,
		TabID:   99,
		Removal: platform.RemovalInfo{WindowID: wid},
	}))
	time.Sleep(40 * time.Millisecond)

	_, _, _, windowEvents := metrics.snapshot()
	assert.Equal(t, 0, windowEvents, "events for a closed window must never reach enqueueWindowEvent")

	eng.mu.Lock()
	historyLen := len(eng.historyQueue)
	_, tracked := eng.tabHistoryURL[99]
	eng.mu.Unlock()
	assert.Zero(t, historyLen, "a discarded event must not leave a queued history edit behind")
	assert.False(t, tracked, "a discarded tab-updated event must not populate tabHistoryURL")
}

func TestPresence(t *testing.T) {
	eng, _, st, reg, _ := newHarness(t)
	ctx := context.Background()
	require.NoError(t, eng.EnsureInitialized(ctx))

	exists, isOpen := eng.Presence(ctx, "ghost")
	assert.False(t, exists)
	assert.False(t, isOpen)

	saved, ok := st.Create(ctx, &types.Session{Name: store.NamePointerOrNil("work"), LastAccess: time.Now()})
	require.True(t, ok)
	reg.Insert(saved)

	exists, isOpen = eng.Presence(ctx, "WORK")
	assert.True(t, exists)
	assert.False(t, isOpen)

	wid := 1
	saved.WindowID = &wid
	exists, isOpen = eng.Presence(ctx, "work")
	assert.True(t, exists)
	assert.True(t, isOpen)
}
