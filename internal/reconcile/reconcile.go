// Package reconcile is the Space Reconciliation Engine (C5): the
// event-driven state machine that binds live browser windows to persisted
// sessions, keeps each window's session view consistent as tabs churn, and
// serializes debounced writes back through the session store.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/errs"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/platform"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/sessionhash"
	"github.com/codedread/spaces/internal/store"
	"github.com/codedread/spaces/internal/types"
	"github.com/codedread/spaces/internal/urlnorm"
)

const defaultDebounce = time.Second

// sessionStore is the subset of *store.Store the engine calls. Expressed as
// an interface, rather than importing the concrete type directly into every
// signature, so tests can substitute a counting fake without a real SQLite
// database. *store.Store satisfies this structurally.
type sessionStore interface {
	FetchAll(ctx context.Context) []*types.Session
	FetchByName(ctx context.Context, name string) (*types.Session, bool)
	FetchVersion(ctx context.Context) (string, bool)
	UpsertVersion(ctx context.Context, version string) bool
	ResetAllHashes(ctx context.Context, hash func([]types.Tab) uint32) bool
	Create(ctx context.Context, draft *types.Session) (*types.Session, bool)
	Update(ctx context.Context, session *types.Session) (*types.Session, bool)
	Remove(ctx context.Context, id int64) bool
}

type historyAction int

const (
	historyAdd historyAction = iota
	historyRemove
)

type historyEdit struct {
	URL      string
	WindowID int
	Action   historyAction
}

// Engine is the reconciliation state machine. The embedded mutex guards only
// the engine's own auxiliary bookkeeping (closed set, history queue, timers,
// tab->URL map, event counter); the registry synchronizes itself, matching
// the teacher's "capture without lock, I/O without lock, patch cache under
// lock" shape applied to a second, smaller cache instead of duplicating the
// registry's own locking.
type Engine struct {
	mu sync.Mutex

	reg   *registry.Registry
	store sessionStore
	plat  platform.Client
	clean *urlnorm.Cleaner

	logger  *logging.Logger
	metrics Metrics
	tracer  Tracer

	extensionID    string
	currentVersion string
	debounce       time.Duration

	tabHistoryURL       map[int]string
	closedWindowIDs     map[int]struct{}
	historyQueue        []historyEdit
	sessionTimers       map[int]*time.Timer
	boundsTimers        map[int]*time.Timer
	eventQueueCount     uint64
	pendingWindowEvents int

	initGate *initGate
}

// Option configures optional Engine behavior at construction time.
type Option func(*Engine)

// WithMetrics wires a Metrics sink; omit to use a no-op sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithTracer wires a Tracer; omit to use a no-op tracer.
func WithTracer(t Tracer) Option { return func(e *Engine) { e.tracer = t } }

// WithDebounce overrides the 1s coalescing window, used by tests that can't
// afford to wait on the real timer.
func WithDebounce(d time.Duration) Option { return func(e *Engine) { e.debounce = d } }

// New constructs an Engine. extensionID feeds the internal-window filter and
// the URL cleaner's self-page filter; currentVersion drives the one-shot
// migration hook at init.
func New(reg *registry.Registry, st sessionStore, plat platform.Client, extensionID, currentVersion string, logger *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		reg:             reg,
		store:           st,
		plat:            plat,
		clean:           urlnorm.New(extensionID),
		logger:          logger,
		metrics:         noopMetrics{},
		tracer:          noopTracer{},
		extensionID:     extensionID,
		currentVersion:  currentVersion,
		debounce:        defaultDebounce,
		tabHistoryURL:   make(map[int]string),
		closedWindowIDs: make(map[int]struct{}),
		sessionTimers:   make(map[int]*time.Timer),
		boundsTimers:    make(map[int]*time.Timer),
		initGate:        newInitGate(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drains the platform's event channel until ctx is cancelled or the
// channel closes. Intended to be called once, from cmd/spacesd's main loop.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-e.plat.Events():
			if !ok {
				return
			}
			if err := e.HandleEvent(ctx, evt); err != nil {
				e.logger.Warn("reconcile: event handling failed", zap.Error(err))
			}
		}
	}
}

// --- initialization (§4.5.2) ---

// EnsureInitialized runs the cold-start sequence exactly once, sharing the
// in-flight run across concurrent callers.
func (e *Engine) EnsureInitialized(ctx context.Context) error {
	return e.initGate.ensure(ctx, e.runInit)
}

// Reinitialize flips the gate back to "never" and re-runs the cold-start
// sequence, for use when the platform signals a restart (distinct from
// install) separately from process startup.
func (e *Engine) Reinitialize(ctx context.Context) error {
	e.initGate.reset()
	return e.EnsureInitialized(ctx)
}

func (e *Engine) runInit(ctx context.Context) error {
	lastVersion, hadVersion := e.store.FetchVersion(ctx)
	if !hadVersion || lastVersion != e.currentVersion {
		e.store.ResetAllHashes(ctx, func(tabs []types.Tab) uint32 {
			return sessionhash.Hash(tabs, e.clean.Clean)
		})
		e.store.UpsertVersion(ctx, e.currentVersion)
	}

	for _, sess := range e.store.FetchAll(ctx) {
		// window_id is never a persisted column (Open Question 3, resolved as
		// "never persisted"), so every freshly loaded row already satisfies
		// the restart sweep described in spec.md step 3 without a write.
		sess.WindowID = nil
		if live, ok := e.reg.Lookup(*sess.ID); ok {
			// Already registered by an earlier run (Reinitialize): keep the
			// live entry rather than adding a second one for the same id.
			e.reg.SetWindowID(live, nil)
			continue
		}
		e.reg.Insert(sess)
	}

	windows, err := e.plat.ListWindows(ctx)
	if err != nil {
		e.logger.Warn("reconcile: list windows failed during init", zap.Error(err))
		windows = nil
	}
	for _, w := range windows {
		if err := e.initTimeMatch(ctx, w); err != nil {
			e.logger.Warn("reconcile: init-time match failed", zap.Int("window_id", w.ID), zap.Error(err))
		}
	}

	e.mu.Lock()
	for _, w := range windows {
		for _, t := range w.Tabs {
			e.tabHistoryURL[t.ID] = t.URL
		}
	}
	e.mu.Unlock()

	e.reg.SetInitialized(true)
	return nil
}

// --- matching (§4.5.3) ---

func (e *Engine) initTimeMatch(ctx context.Context, w *platform.Window) error {
	if _, ok := e.reg.LookupByWindowMemory(w.ID); ok {
		return nil
	}
	_, err := e.ensureSession(ctx, w)
	return err
}

func (e *Engine) ensureSession(ctx context.Context, w *platform.Window) (*types.Session, error) {
	domainTabs := w.TabsAsDomain()
	h := sessionhash.Hash(domainTabs, e.clean.Clean)

	if existing, ok := e.reg.LookupByWindowMemory(w.ID); ok {
		return existing, nil
	}

	if s, ok := e.reg.FindUnboundByHash(h); ok {
		e.bind(ctx, s, w.ID)
		return s, nil
	}

	wid := w.ID
	candidate := &types.Session{
		WindowID:    &wid,
		SessionHash: h,
		Tabs:        domainTabs,
		LastAccess:  time.Now(),
	}
	entry, added := e.reg.AddSafely(candidate)
	if !added {
		// A race produced a session for this window meanwhile; adopt it.
		return entry, nil
	}
	return entry, nil
}

// bind removes any other registry entry bound to wid, then binds s to it.
// Per the Open Question 3 resolution, clearing another entry's window_id is
// a pure in-memory operation: window_id is never a persisted column, so it
// never by itself drives a store write here.
func (e *Engine) bind(ctx context.Context, s *types.Session, wid int) {
	if other, ok := e.reg.LookupByWindowMemory(wid); ok && other != s {
		if other.IsDurable() {
			e.reg.SetWindowID(other, nil)
		} else {
			e.reg.RemoveEntry(other)
		}
		e.metrics.RecordRebind()
	} else {
		e.metrics.RecordBind()
	}
	e.reg.SetWindowID(s, &wid)
}

// --- event handlers (§4.5.4) ---

// HandleEvent dispatches a single platform event after awaiting
// initialization, absorbing duplicate events for already-closed windows.
func (e *Engine) HandleEvent(ctx context.Context, evt platform.Event) error {
	if err := e.EnsureInitialized(ctx); err != nil {
		return err
	}

	closingRemoval := evt.Kind == platform.EventTabRemoved && evt.Removal.IsWindowClosing
	if wid := windowIDOf(evt); wid != 0 && e.isClosed(wid) && !closingRemoval {
		return nil
	}

	switch evt.Kind {
	case platform.EventTabCreated:
		// tab-updated covers this; nothing to do.
	case platform.EventTabUpdated:
		e.handleTabUpdated(evt)
	case platform.EventTabRemoved:
		e.handleTabRemoved(ctx, evt)
	case platform.EventTabMoved:
		e.enqueueWindowEvent(evt.WindowID)
	case platform.EventWindowFocusChanged:
		e.handleWindowFocusChanged(evt.WindowID)
	case platform.EventWindowRemoved:
		e.handleWindowRemoved(ctx, evt.WindowID, true)
	case platform.EventWindowBoundsChanged:
		e.captureWindowBounds(ctx, evt.WindowID, evt.Bounds)
	}
	return nil
}

// windowIDOf returns the window id each handler actually keys off for evt's
// kind, since evt.WindowID is only reliably populated for the window-level
// event kinds — tab events carry their window id in the per-kind struct
// (Tab.WindowID, Removal.WindowID) instead.
func windowIDOf(evt platform.Event) int {
	switch evt.Kind {
	case platform.EventTabUpdated:
		return evt.Tab.WindowID
	case platform.EventTabRemoved:
		return evt.Removal.WindowID
	default:
		return evt.WindowID
	}
}

func (e *Engine) handleTabUpdated(evt platform.Event) {
	tab := evt.Tab
	if tab.Status == platform.StatusComplete {
		e.mu.Lock()
		e.tabHistoryURL[tab.ID] = tab.URL
		e.mu.Unlock()
		e.enqueueWindowEvent(tab.WindowID)
	}
	if evt.Change.URL != "" {
		e.mu.Lock()
		e.historyQueue = append(e.historyQueue, historyEdit{URL: evt.Change.URL, WindowID: tab.WindowID, Action: historyRemove})
		e.mu.Unlock()
	}
}

func (e *Engine) handleTabRemoved(ctx context.Context, evt platform.Event) {
	if evt.Removal.IsWindowClosing {
		e.handleWindowRemoved(ctx, evt.Removal.WindowID, true)
		return
	}

	e.mu.Lock()
	url := e.tabHistoryURL[evt.TabID]
	delete(e.tabHistoryURL, evt.TabID)
	e.historyQueue = append(e.historyQueue, historyEdit{URL: url, WindowID: evt.Removal.WindowID, Action: historyAdd})
	e.mu.Unlock()

	e.enqueueWindowEvent(evt.Removal.WindowID)
}

func (e *Engine) handleWindowFocusChanged(wid int) {
	if wid <= 0 {
		return
	}
	if live, ok := e.reg.LookupByWindowMemory(wid); ok {
		live.LastAccess = time.Now()
	}
}

// --- event coalescing (§4.5.5) ---

func (e *Engine) enqueueWindowEvent(wid int) {
	e.mu.Lock()

	if _, closed := e.closedWindowIDs[wid]; closed {
		e.mu.Unlock()
		return
	}
	prev, alreadyPending := e.sessionTimers[wid]
	if alreadyPending {
		// A timer that already fired has taken itself off the gauge.
		alreadyPending = prev.Stop()
	}

	e.eventQueueCount++
	span := e.tracer.StartSpan("reconcile.window_event")
	span.SetTag("window_id", wid)
	span.SetTag("event_queue_count", e.eventQueueCount)

	e.sessionTimers[wid] = time.AfterFunc(e.debounce, func() {
		span.Finish()
		e.setPendingWindowEvents(-1)
		if err := e.handleWindowEvent(context.Background(), wid); err != nil {
			e.logger.Warn("reconcile: window event handling", zap.Int("window_id", wid), zap.Error(err))
		}
	})
	e.mu.Unlock()

	if !alreadyPending {
		e.setPendingWindowEvents(1)
	}
}

// handleWindowEvent re-reads wid's live window state and folds it into the
// bound session. A *errs.StalePlatformHandle return means the platform
// failed to resolve a window id the engine still believed was live; this
// function has already called handleWindowRemoved(wid, markClosed=false) to
// clean up the binding before it returns.
func (e *Engine) handleWindowEvent(ctx context.Context, wid int) error {
	if wid <= 0 || e.isClosed(wid) {
		return nil
	}

	win, ok, err := e.plat.GetWindow(ctx, wid)
	if err != nil || !ok {
		e.handleWindowRemoved(ctx, wid, false)
		return &errs.StalePlatformHandle{WindowID: wid}
	}
	if platform.IsInternal(win, e.extensionID) {
		return nil
	}

	sess, found := e.reg.LookupByWindowMemory(wid)
	if found {
		for _, edit := range e.drainHistoryQueue(wid) {
			switch edit.Action {
			case historyAdd:
				e.addURLToHistory(sess, edit.URL)
			case historyRemove:
				e.removeURLFromHistory(sess, edit.URL)
			}
		}

		sess.Tabs = win.TabsAsDomain()
		sess.SessionHash = sessionhash.Hash(sess.Tabs, e.clean.Clean)
		if sess.IsDurable() {
			if _, ok := e.store.Update(ctx, sess); !ok {
				e.metrics.RecordStoreDegraded()
			}
		}
	}

	if !found || !sess.IsDurable() {
		if _, err := e.ensureSession(ctx, win); err != nil {
			e.logger.Warn("reconcile: ensure-session failed during window event", zap.Int("window_id", wid), zap.Error(err))
		}
	}

	e.metrics.RecordWindowEventHandled()
	e.recordSessionGauges()
	return nil
}

func (e *Engine) drainHistoryQueue(wid int) []historyEdit {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []historyEdit
	var remaining []historyEdit
	for i := len(e.historyQueue) - 1; i >= 0; i-- {
		edit := e.historyQueue[i]
		if edit.WindowID == wid {
			matched = append(matched, edit)
		} else {
			remaining = append(remaining, edit)
		}
	}
	for i, j := 0, len(remaining)-1; i < j; i, j = i+1, j-1 {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	}
	e.historyQueue = remaining
	return matched
}

func (e *Engine) addURLToHistory(sess *types.Session, rawURL string) {
	u := e.clean.Clean(rawURL)
	if u == "" {
		return
	}

	var match types.Tab
	count := 0
	for _, t := range sess.Tabs {
		if e.clean.Clean(t.URL) == u {
			count++
			match = t
		}
	}
	if count != 1 {
		return
	}

	var filtered []types.Tab
	for _, h := range sess.History {
		if e.clean.Clean(h.URL) != u {
			filtered = append(filtered, h)
		}
	}
	sess.History = append([]types.Tab{match}, filtered...)
	if len(sess.History) > types.HistoryMax {
		sess.History = sess.History[:types.HistoryMax]
	}
}

func (e *Engine) removeURLFromHistory(sess *types.Session, rawURL string) {
	u := e.clean.Clean(rawURL)
	if u == "" {
		return
	}
	var filtered []types.Tab
	for _, h := range sess.History {
		if e.clean.Clean(h.URL) != u {
			filtered = append(filtered, h)
		}
	}
	sess.History = filtered
}

// --- window removal (§4.5.6) ---

func (e *Engine) handleWindowRemoved(ctx context.Context, wid int, markClosed bool) {
	if e.isClosed(wid) {
		return
	}

	if markClosed {
		e.mu.Lock()
		e.closedWindowIDs[wid] = struct{}{}
		timer, hadTimer := e.sessionTimers[wid]
		hadPendingTimer := hadTimer && timer.Stop()
		if hadTimer {
			delete(e.sessionTimers, wid)
		}
		if t, ok := e.boundsTimers[wid]; ok {
			t.Stop()
			delete(e.boundsTimers, wid)
		}
		e.mu.Unlock()
		if hadPendingTimer {
			e.setPendingWindowEvents(-1)
		}
	}

	live, found := e.reg.LookupByWindowMemory(wid)
	if !found {
		return
	}

	if live.IsDurable() {
		e.reg.SetWindowID(live, nil)
		if _, ok := e.store.Update(ctx, live); !ok {
			e.metrics.RecordStoreDegraded()
		}
	} else {
		e.reg.RemoveEntry(live)
	}

	if markClosed {
		e.metrics.RecordWindowClosed()
	}
	e.recordSessionGauges()
}

func (e *Engine) isClosed(wid int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.closedWindowIDs[wid]
	return ok
}

// recordSessionGauges recomputes the open/durable session counts and pushes
// them to the metrics sink, mirroring the health handler's own tally so the
// Prometheus gauges agree with what /health reports.
func (e *Engine) recordSessionGauges() {
	all := e.reg.GetAll()
	open, durable := 0, 0
	for _, s := range all {
		if s.IsOpen() {
			open++
		}
		if s.IsDurable() {
			durable++
		}
	}
	e.metrics.SetSessionsActive(open)
	e.metrics.SetSessionsDurable(durable)
}

// setPendingWindowEvents updates the pending-event gauge under lock, called
// from the enqueue/fire/cancel transition points below.
func (e *Engine) setPendingWindowEvents(delta int) {
	e.mu.Lock()
	e.pendingWindowEvents += delta
	count := e.pendingWindowEvents
	e.mu.Unlock()
	e.metrics.SetEventQueueCount(count)
}

// --- bounds capture (§4.5.7) ---

func (e *Engine) captureWindowBounds(ctx context.Context, wid int, bounds types.WindowBounds) {
	live, found := e.reg.LookupByWindowMemory(wid)
	if !found || !live.IsDurable() {
		return
	}

	b := bounds
	live.WindowBounds = &b
	e.scheduleBoundsWrite(wid, live)
}

func (e *Engine) scheduleBoundsWrite(wid int, sess *types.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.boundsTimers[wid]; ok {
		t.Stop()
	}
	e.boundsTimers[wid] = time.AfterFunc(e.debounce, func() {
		if e.isClosed(wid) {
			return
		}
		e.store.Update(context.Background(), sess)
	})
}

// --- user-facing mutations (§4.5.8) ---

// SaveNewSession saves tabs under name, optionally binding the result to an
// already-live window. If wid names a window already bound to a durable
// session, the save is rejected to avoid corrupting existing data.
func (e *Engine) SaveNewSession(ctx context.Context, name string, tabs []types.Tab, wid *int, bounds *types.WindowBounds, deleteOld bool) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	return e.saveNewSessionInternal(ctx, name, tabs, wid, bounds, deleteOld)
}

func (e *Engine) saveNewSessionInternal(ctx context.Context, name string, tabs []types.Tab, wid *int, bounds *types.WindowBounds, deleteOld bool) (*types.Session, error) {
	var target *types.Session
	unaddressable := wid == nil

	if wid != nil {
		if bound, ok := e.reg.LookupByWindowMemory(*wid); ok {
			if bound.IsDurable() {
				e.logger.Error("reconcile: refusing save_new_session", zap.Int("window_id", *wid), zap.String("reason", "window already bound to a durable session"))
				return nil, &errs.InvariantViolation{Reason: "window already bound to a durable session"}
			}
			target = bound
		}
		if target == nil {
			w := *wid
			entry, _ := e.reg.AddSafely(&types.Session{WindowID: &w, LastAccess: time.Now()})
			target = entry
		}
	} else {
		// A session with neither id nor window id violates invariant 2, so
		// this candidate is kept off the registry entirely until
		// store.Create assigns it an id below — a create failure then
		// leaves nothing to clean up instead of leaking an orphaned entry.
		target = &types.Session{LastAccess: time.Now()}
	}

	if err := e.resolveNameConflict(ctx, name, target.ID, deleteOld); err != nil {
		return nil, err
	}

	target.Name = store.NamePointerOrNil(name)
	target.Tabs = tabs
	target.SessionHash = sessionhash.Hash(tabs, e.clean.Clean)
	target.LastAccess = time.Now()
	if bounds != nil {
		b := *bounds
		target.WindowBounds = &b
	}

	saved, ok := e.store.Create(ctx, target)
	if !ok {
		return nil, &errs.StoreError{Op: "save_new_session", Err: errors.New("create failed")}
	}

	if unaddressable {
		target.ID = saved.ID
		e.reg.AddSafely(target)
		return target, nil
	}
	e.reg.Promote(target, *saved.ID)
	return target, nil
}

// UpdateSessionName renames a durable session, arbitrating a case-insensitive
// name collision per deleteOld.
func (e *Engine) UpdateSessionName(ctx context.Context, id int64, newName string, deleteOld bool) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	live, ok := e.reg.Lookup(id)
	if !ok {
		e.logger.Error("reconcile: refusing update_session_name", zap.Int64("id", id), zap.String("reason", "unknown session id"))
		return nil, &errs.InvariantViolation{Reason: "unknown session id"}
	}

	if err := e.resolveNameConflict(ctx, newName, &id, deleteOld); err != nil {
		return nil, err
	}

	live.Name = store.NamePointerOrNil(newName)
	saved, ok := e.store.Update(ctx, live)
	if !ok {
		return nil, &errs.StoreError{Op: "update_session_name", Err: errors.New("update failed")}
	}
	return e.reg.ApplyUpdate(saved), nil
}

// SaveExistingSession persists session and syncs the registry's cached copy
// by id.
func (e *Engine) SaveExistingSession(ctx context.Context, session *types.Session) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	saved, ok := e.store.Update(ctx, session)
	if !ok {
		return nil, &errs.StoreError{Op: "save_existing_session", Err: errors.New("update failed")}
	}
	return e.reg.ApplyUpdate(saved), nil
}

// DeleteSession removes a durable session from the store and, on success,
// the registry.
func (e *Engine) DeleteSession(ctx context.Context, id int64) bool {
	if err := e.EnsureInitialized(ctx); err != nil {
		return false
	}
	if !e.store.Remove(ctx, id) {
		return false
	}
	e.reg.RemoveByID(id)
	return true
}

// UpdateSessionTabs recomputes the session hash for a new tab list and
// persists it.
func (e *Engine) UpdateSessionTabs(ctx context.Context, id int64, tabs []types.Tab) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}

	live, ok := e.reg.Lookup(id)
	if !ok {
		e.logger.Error("reconcile: refusing update_session_tabs", zap.Int64("id", id), zap.String("reason", "unknown session id"))
		return nil, &errs.InvariantViolation{Reason: "unknown session id"}
	}

	live.Tabs = tabs
	live.SessionHash = sessionhash.Hash(tabs, e.clean.Clean)
	saved, ok := e.store.Update(ctx, live)
	if !ok {
		return nil, &errs.StoreError{Op: "update_session_tabs", Err: errors.New("update failed")}
	}
	return e.reg.ApplyUpdate(saved), nil
}

// RestoreFromBackup recreates a durable session from an exported Space view,
// following save_new_session's name-conflict policy.
func (e *Engine) RestoreFromBackup(ctx context.Context, space types.SpaceView, deleteOld bool) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	name := ""
	if space.Name != nil {
		name = *space.Name
	}
	return e.saveNewSessionInternal(ctx, name, space.Tabs, nil, nil, deleteOld)
}

// ImportNewSession creates a new, unbound, unnamed durable session from a
// flat list of URLs.
func (e *Engine) ImportNewSession(ctx context.Context, urls []string, deleteOld bool) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	tabs := make([]types.Tab, len(urls))
	for i, u := range urls {
		tabs[i] = types.Tab{URL: u}
	}
	return e.saveNewSessionInternal(ctx, "", tabs, nil, nil, deleteOld)
}

func (e *Engine) resolveNameConflict(ctx context.Context, name string, selfID *int64, deleteOld bool) error {
	trimmed := store.NamePointerOrNil(name)
	if trimmed == nil {
		return nil
	}

	existing, ok := e.store.FetchByName(ctx, *trimmed)
	if !ok {
		return nil
	}
	if selfID != nil && existing.ID != nil && *existing.ID == *selfID {
		return nil // same-id capitalization change, allowed without arbitration
	}
	if !deleteOld {
		return &errs.NameConflict{ExistingID: *existing.ID}
	}
	e.DeleteSession(ctx, *existing.ID)
	return nil
}

// --- supplemental queries (§4.5.9, §4.5.10) ---

// TabDetail looks up a tab by platform id across every session's live tabs,
// then its history, returning the first hit.
func (e *Engine) TabDetail(tabID int) (types.Tab, bool) {
	sessions := e.reg.GetAll()
	for _, s := range sessions {
		for _, t := range s.Tabs {
			if t.ID == tabID {
				return t, true
			}
		}
	}
	for _, s := range sessions {
		for _, t := range s.History {
			if t.ID == tabID {
				return t, true
			}
		}
	}
	return types.Tab{}, false
}

// Presence reports whether a durable session named name exists, and if so
// whether it currently has a live window bound.
func (e *Engine) Presence(ctx context.Context, name string) (exists, isOpen bool) {
	sess, ok := e.store.FetchByName(ctx, name)
	if !ok {
		return false, false
	}
	live, found := e.reg.Lookup(*sess.ID)
	return true, found && live.IsOpen()
}

// --- tab relocation and load/switch touches (§4.5.11) ---

// AppendTabToSession appends tab to a durable session's tab list by id,
// used by move_tab_to_session and add_link_to_session: the tab's removal
// from wherever it lives today, if it lives in a live window at all, is the
// browser's own job and arrives back through the normal event stream.
func (e *Engine) AppendTabToSession(ctx context.Context, id int64, tab types.Tab) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	live, ok := e.reg.Lookup(id)
	if !ok {
		e.logger.Error("reconcile: refusing append_tab_to_session", zap.Int64("id", id), zap.String("reason", "unknown session id"))
		return nil, &errs.InvariantViolation{Reason: "unknown session id"}
	}
	return e.UpdateSessionTabs(ctx, id, append(append([]types.Tab(nil), live.Tabs...), tab))
}

// AppendTabToWindow appends tab to the session currently bound to wid,
// persisting the change when that session is durable and leaving it
// in-memory otherwise.
func (e *Engine) AppendTabToWindow(ctx context.Context, wid int, tab types.Tab) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	live, ok := e.reg.LookupByWindowMemory(wid)
	if !ok {
		e.logger.Error("reconcile: refusing append_tab_to_window", zap.Int("window_id", wid), zap.String("reason", "unknown window id"))
		return nil, &errs.InvariantViolation{Reason: "unknown window id"}
	}

	live.Tabs = append(live.Tabs, tab)
	live.SessionHash = sessionhash.Hash(live.Tabs, e.clean.Clean)
	if !live.IsDurable() {
		return live, nil
	}
	saved, ok := e.store.Update(ctx, live)
	if !ok {
		return nil, &errs.StoreError{Op: "append_tab_to_window", Err: errors.New("update failed")}
	}
	return e.reg.ApplyUpdate(saved), nil
}

// Touch bumps a durable session's last-access time, used by load_session and
// switch_to_space when the target is addressed by session id. Lookup is
// keyed by store-issued id, so the session this finds is always durable.
func (e *Engine) Touch(ctx context.Context, id int64) (*types.Session, error) {
	if err := e.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	live, ok := e.reg.Lookup(id)
	if !ok {
		e.logger.Error("reconcile: refusing touch", zap.Int64("id", id), zap.String("reason", "unknown session id"))
		return nil, &errs.InvariantViolation{Reason: "unknown session id"}
	}
	live.LastAccess = time.Now()
	saved, ok := e.store.Update(ctx, live)
	if !ok {
		return nil, &errs.StoreError{Op: "touch", Err: errors.New("update failed")}
	}
	return e.reg.ApplyUpdate(saved), nil
}

// TouchWindow bumps the last-access time of whatever session is bound to
// wid, used by load_window and switch_to_space when the target is addressed
// by window id. Mirrors handleWindowFocusChanged's in-memory-only update:
// an already-open window's session needn't be re-persisted just to record
// that the user looked at it again.
func (e *Engine) TouchWindow(wid int) (*types.Session, bool) {
	live, ok := e.reg.LookupByWindowMemory(wid)
	if ok {
		live.LastAccess = time.Now()
	}
	return live, ok
}

// CurrentSpace returns the open session with the most recent last-access
// time, the engine's notion of "the space the user is currently looking at"
// absent a platform API that reports window focus directly to callers
// outside the event stream.
func (e *Engine) CurrentSpace() (*types.Session, bool) {
	var best *types.Session
	for _, s := range e.reg.GetAll() {
		if !s.IsOpen() {
			continue
		}
		if best == nil || s.LastAccess.After(best.LastAccess) {
			best = s
		}
	}
	return best, best != nil
}
