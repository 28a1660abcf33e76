package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/metrics"
	"github.com/codedread/spaces/internal/platform/fake"
	"github.com/codedread/spaces/internal/reconcile"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/store"
)

// dial spins up a gin server hosting one Handler and returns an open
// websocket connection; teardown is registered with t.Cleanup.
func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewDevelopment()
	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, logger)
	plat := fake.New()
	eng := reconcile.New(reg, st, plat, "abcdefextension", "1.0.0", logger, reconcile.WithDebounce(5*time.Millisecond))
	require.NoError(t, eng.EnsureInitialized(context.Background()))

	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	h := New(eng, reg, logger, m)

	r := gin.New()
	r.GET("/stream", h.HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSaveNewSessionAndQueryPresence(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "save_new_session",
		"name":   "Work",
	}))
	var saved map[string]interface{}
	require.NoError(t, conn.ReadJSON(&saved))
	require.Equal(t, "Work", saved["name"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "request_session_presence", "name": "Work"}))
	var presence map[string]interface{}
	require.NoError(t, conn.ReadJSON(&presence))
	require.Equal(t, true, presence["exists"])
}

func TestUnknownSessionNameConflictSurfacesStructured(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "save_new_session", "name": "Research"}))
	var first map[string]interface{}
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "save_new_session", "name": "Research"}))
	var second map[string]interface{}
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "name_conflict", second["error"])
}

func TestDeleteSessionReturnsFalseWhenUnknown(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "delete_session", "sid": 999}))
	var result bool
	require.NoError(t, conn.ReadJSON(&result))
	require.False(t, result)
}

func TestUIControlActionAcknowledged(t *testing.T) {
	conn := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "request_show_spaces"}))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, true, ack["ok"])
}

func TestCanonBoolAcceptsStringAndNumericForms(t *testing.T) {
	require.True(t, canonBool([]byte(`"true"`)))
	require.True(t, canonBool([]byte(`1`)))
	require.False(t, canonBool([]byte(`"false"`)))
	require.False(t, canonBool(nil))
}

func TestCanonInt64AcceptsNumericString(t *testing.T) {
	id, ok := canonInt64([]byte(`"42"`))
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}
