package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", logging.NewDevelopment())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndFetchByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	draft := &types.Session{
		Name:        NamePointerOrNil("work"),
		SessionHash: 42,
		Tabs:        []types.Tab{{ID: 1, URL: "https://example.com"}},
		LastAccess:  time.Now(),
	}

	saved, ok := s.Create(ctx, draft)
	require.True(t, ok)
	require.NotNil(t, saved.ID)

	fetched, ok := s.FetchByID(ctx, *saved.ID)
	require.True(t, ok)
	assert.Equal(t, uint32(42), fetched.SessionHash)
	assert.Equal(t, "https://example.com", fetched.Tabs[0].URL)
	assert.Equal(t, "work", *fetched.Name)
}

func TestFetchByNameCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok := s.Create(ctx, &types.Session{Name: NamePointerOrNil("Work"), LastAccess: time.Now()})
	require.True(t, ok)

	found, ok := s.FetchByName(ctx, "work")
	require.True(t, ok)
	assert.Equal(t, "Work", *found.Name)
}

func TestUpdatePreservesID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, ok := s.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)

	saved.SessionHash = 99
	saved.Tabs = []types.Tab{{URL: "https://changed.example"}}
	updated, ok := s.Update(ctx, saved)
	require.True(t, ok)
	assert.Equal(t, *saved.ID, *updated.ID)

	fetched, ok := s.FetchByID(ctx, *saved.ID)
	require.True(t, ok)
	assert.Equal(t, uint32(99), fetched.SessionHash)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, ok := s.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)

	assert.True(t, s.Remove(ctx, *saved.ID))
	assert.False(t, s.Remove(ctx, *saved.ID), "removing a missing row reports false, not an error")

	_, ok = s.FetchByID(ctx, *saved.ID)
	assert.False(t, ok)
}

func TestFetchByWindowIDAlwaysMisses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok := s.Create(ctx, &types.Session{LastAccess: time.Now()})
	require.True(t, ok)

	_, found := s.FetchByWindowID(ctx, 1)
	assert.False(t, found, "window_id is never persisted, so store-side lookup never hits")
}

func TestVersionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok := s.FetchVersion(ctx)
	assert.False(t, ok)

	require.True(t, s.UpsertVersion(ctx, "1.2.3"))
	v, ok := s.FetchVersion(ctx)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v)

	require.True(t, s.UpsertVersion(ctx, "1.3.0"))
	v, ok = s.FetchVersion(ctx)
	require.True(t, ok)
	assert.Equal(t, "1.3.0", v)
}

func TestResetAllHashes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, ok := s.Create(ctx, &types.Session{
		Tabs:       []types.Tab{{URL: "https://a.example"}, {URL: "https://b.example"}},
		LastAccess: time.Now(),
	})
	require.True(t, ok)

	called := 0
	ok = s.ResetAllHashes(ctx, func(tabs []types.Tab) uint32 {
		called++
		return uint32(len(tabs))
	})
	require.True(t, ok)
	assert.Equal(t, 1, called)

	fetched, found := s.FetchByID(ctx, *saved.ID)
	require.True(t, found)
	assert.Equal(t, uint32(2), fetched.SessionHash)
}

func TestBoundsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bounds := &types.WindowBounds{Left: 10, Top: 20, Width: 800, Height: 600}
	saved, ok := s.Create(ctx, &types.Session{WindowBounds: bounds, LastAccess: time.Now()})
	require.True(t, ok)

	fetched, ok := s.FetchByID(ctx, *saved.ID)
	require.True(t, ok)
	require.NotNil(t, fetched.WindowBounds)
	assert.Equal(t, *bounds, *fetched.WindowBounds)
}
