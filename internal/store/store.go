// Package store is the durable session store: an embedded SQLite database
// behind the same CRUD surface spec'd for the external key/value collaborator.
// Every public method is fail-closed per the error handling design — an
// underlying I/O failure is logged here and a zero/false/empty result
// returned, never a Go error propagated to the registry or reconcile layers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/errs"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/resilience"
	"github.com/codedread/spaces/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT,
	session_hash       INTEGER NOT NULL,
	tabs_json          BLOB NOT NULL,
	history_json       BLOB NOT NULL,
	last_access        TEXT NOT NULL,
	window_bounds_json BLOB
);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const versionKey = "extension_version"

// opMetrics is the narrow metrics surface the store drives; internal/metrics
// implements it. Kept as a small interface here, mirroring reconcile.Metrics,
// so the store has no dependency on the metrics registry's construction.
type opMetrics interface {
	RecordStoreOp(op string, duration time.Duration, ok bool)
}

type noopOpMetrics struct{}

func (noopOpMetrics) RecordStoreOp(string, time.Duration, bool) {}

// Store is the SQLite-backed session store.
type Store struct {
	db      *sql.DB
	logger  *logging.Logger
	breaker *resilience.Breaker
	metrics opMetrics
}

// Option configures optional Store behavior at construction time.
type Option func(*Store)

// WithMetrics wires a metrics sink that records each write's duration and
// outcome; omit to use a no-op sink.
func WithMetrics(m opMetrics) Option { return func(s *Store) { s.metrics = m } }

// Open creates (or attaches to) the SQLite database at path and ensures the
// schema exists. path may be ":memory:" for tests.
func Open(path string, logger *logging.Logger, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid lock contention

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	breaker := resilience.New("session-store", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("store breaker transition",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	s := &Store{db: db, logger: logger, breaker: breaker, metrics: noopOpMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// FetchAll returns every durable session, unordered.
func (s *Store) FetchAll(ctx context.Context) []*types.Session {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, session_hash, tabs_json, history_json, last_access, window_bounds_json FROM sessions`)
	if err != nil {
		s.logFailure("fetch_all", err)
		return nil
	}
	defer rows.Close()

	var out []*types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			s.logFailure("fetch_all.scan", err)
			continue
		}
		out = append(out, sess)
	}
	return out
}

// FetchByID returns the session with the given id, if it exists.
func (s *Store) FetchByID(ctx context.Context, id int64) (*types.Session, bool) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, session_hash, tabs_json, history_json, last_access, window_bounds_json FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logFailure("fetch_by_id", err)
		}
		return nil, false
	}
	return sess, true
}

// FetchByWindowID always misses: window_id is runtime-only and is never
// written to a row (Open Question 3, resolved as option (a)). Kept as a
// method so the store still exposes every operation spec.md names for C3;
// Registry.GetByWindow calls it as its store fallback, which therefore
// never finds a row.
func (s *Store) FetchByWindowID(_ context.Context, _ int) (*types.Session, bool) {
	return nil, false
}

// FetchByName returns the durable session whose name matches
// case-insensitively.
func (s *Store) FetchByName(ctx context.Context, name string) (*types.Session, bool) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, session_hash, tabs_json, history_json, last_access, window_bounds_json FROM sessions WHERE LOWER(name) = LOWER(?)`,
		name)
	sess, err := scanSession(row)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logFailure("fetch_by_name", err)
		}
		return nil, false
	}
	return sess, true
}

// Create inserts draft and returns the row with its assigned id.
func (s *Store) Create(ctx context.Context, draft *types.Session) (saved *types.Session, ok bool) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOp("create", time.Since(start), ok) }()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		tabsJSON, err := sonic.Marshal(draft.Tabs)
		if err != nil {
			return nil, err
		}
		historyJSON, err := sonic.Marshal(draft.History)
		if err != nil {
			return nil, err
		}
		boundsJSON, err := marshalBounds(draft.WindowBounds)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (name, session_hash, tabs_json, history_json, last_access, window_bounds_json) VALUES (?, ?, ?, ?, ?, ?)`,
			draft.Name, int64(draft.SessionHash), tabsJSON, historyJSON, draft.LastAccess.Format(time.RFC3339Nano), boundsJSON,
		)
		if err != nil {
			return nil, err
		}
		return res.LastInsertId()
	})
	if err != nil {
		s.logFailure("create", err)
		return nil, false
	}

	id := result.(int64)
	saved = draft.Clone()
	saved.ID = &id
	return saved, true
}

// Update persists every field of session, which must already carry an id.
func (s *Store) Update(ctx context.Context, session *types.Session) (saved *types.Session, ok bool) {
	if session.ID == nil {
		s.logger.Error("store.Update called without id")
		return nil, false
	}

	start := time.Now()
	defer func() { s.metrics.RecordStoreOp("update", time.Since(start), ok) }()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		tabsJSON, err := sonic.Marshal(session.Tabs)
		if err != nil {
			return nil, err
		}
		historyJSON, err := sonic.Marshal(session.History)
		if err != nil {
			return nil, err
		}
		boundsJSON, err := marshalBounds(session.WindowBounds)
		if err != nil {
			return nil, err
		}

		return s.db.ExecContext(ctx,
			`UPDATE sessions SET name = ?, session_hash = ?, tabs_json = ?, history_json = ?, last_access = ?, window_bounds_json = ? WHERE id = ?`,
			session.Name, int64(session.SessionHash), tabsJSON, historyJSON, session.LastAccess.Format(time.RFC3339Nano), boundsJSON, *session.ID,
		)
	})
	if err != nil {
		s.logFailure("update", err)
		return nil, false
	}
	return session.Clone(), true
}

// Remove deletes the session with the given id. Returns whether a row was
// actually removed.
func (s *Store) Remove(ctx context.Context, id int64) (ok bool) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOp("remove", time.Since(start), ok) }()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	})
	if err != nil {
		s.logFailure("remove", err)
		return false
	}
	res := result.(sql.Result)
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

// ResetAllHashes recomputes session_hash for every stored row from its
// tabs, driven by the version-migration hook at init. hash receives the
// tab list and returns the new fingerprint.
func (s *Store) ResetAllHashes(ctx context.Context, hash func([]types.Tab) uint32) bool {
	sessions := s.FetchAll(ctx)
	ok := true
	for _, sess := range sessions {
		sess.SessionHash = hash(sess.Tabs)
		if _, updated := s.Update(ctx, sess); !updated {
			ok = false
		}
	}
	return ok
}

// UpsertVersion writes the last-seen extension version to the kv table.
func (s *Store) UpsertVersion(ctx context.Context, version string) (ok bool) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOp("upsert_version", time.Since(start), ok) }()

	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			versionKey, version)
	})
	if err != nil {
		s.logFailure("upsert_version", err)
		return false
	}
	return true
}

// FetchVersion returns the last-seen extension version, if any was recorded.
func (s *Store) FetchVersion(ctx context.Context) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, versionKey).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logFailure("fetch_version", err)
		}
		return "", false
	}
	return value, true
}

func (s *Store) logFailure(op string, err error) {
	wrapped := &errs.StoreError{Op: op, Err: err}
	s.logger.Warn("store operation degraded", zap.Error(wrapped))
}

// scanner abstracts *sql.Row and *sql.Rows, which share Scan's signature but
// not an interface in the standard library.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var (
		id          int64
		name        sql.NullString
		hash        int64
		tabsJSON    []byte
		historyJSON []byte
		lastAccess  string
		boundsJSON  []byte
	)

	if err := row.Scan(&id, &name, &hash, &tabsJSON, &historyJSON, &lastAccess, &boundsJSON); err != nil {
		return nil, err
	}

	var tabs, history []types.Tab
	if err := sonic.Unmarshal(tabsJSON, &tabs); err != nil {
		return nil, fmt.Errorf("unmarshal tabs: %w", err)
	}
	if err := sonic.Unmarshal(historyJSON, &history); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	bounds, err := unmarshalBounds(boundsJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal bounds: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, lastAccess)
	if err != nil {
		return nil, fmt.Errorf("parse last_access: %w", err)
	}

	sess := &types.Session{
		ID:           &id,
		SessionHash:  uint32(hash),
		Tabs:         tabs,
		History:      history,
		LastAccess:   parsed,
		WindowBounds: bounds,
	}
	if name.Valid {
		n := name.String
		sess.Name = &n
	}
	return sess, nil
}

func marshalBounds(b *types.WindowBounds) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return sonic.Marshal(b)
}

func unmarshalBounds(data []byte) (*types.WindowBounds, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var bounds types.WindowBounds
	if err := sonic.Unmarshal(data, &bounds); err != nil {
		return nil, err
	}
	return &bounds, nil
}

// NamePointerOrNil is a small helper used by callers constructing a draft
// Session from a user-supplied string that may be empty (meaning "no name").
func NamePointerOrNil(name string) *string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
