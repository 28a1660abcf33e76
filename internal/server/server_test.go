package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codedread/spaces/internal/config"
	"github.com/codedread/spaces/internal/platform/fake"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default("abcdefextension")
	cfg.Store.Path = ":memory:"
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	return cfg
}

// A single server shares process-wide Prometheus registration, so every
// route this test package exercises runs against one constructed Server
// rather than one-per-test: a second New() call in the same test binary
// would panic on duplicate metric registration.
func TestServerRoutes(t *testing.T) {
	srv, err := New(testConfig(t), fake.New())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close(context.Background()) })

	require.NoError(t, srv.Engine().EnsureInitialized(context.Background()))

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		srv.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		srv.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "spaces_uptime_seconds")
	})

	t.Run("spaces", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/spaces", nil)
		srv.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
