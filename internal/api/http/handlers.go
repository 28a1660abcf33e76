// Package http serves the control API's read-only REST mirror: a
// health check, Prometheus exposition, and a view onto the current spaces
// for tooling that would rather poll than hold a WebSocket open.
package http

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/api/middleware"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/types"
)

// spaceList mirrors internal/api/ws's all-spaces filter-and-sort rule so
// the REST mirror and the WebSocket query agree on what "all spaces" means.
func spaceList(sessions []*types.Session) []*types.Session {
	out := make([]*types.Session, 0, len(sessions))
	for _, s := range sessions {
		if len(s.Tabs) > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].IsOpen(), out[j].IsOpen()
		if oi != oj {
			return oi
		}
		return out[i].LastAccess.After(out[j].LastAccess)
	})
	return out
}

// Handlers serves the read-only REST endpoints.
type Handlers struct {
	reg    *registry.Registry
	logger *logging.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(reg *registry.Registry, logger *logging.Logger) *Handlers {
	return &Handlers{reg: reg, logger: logger}
}

// Root reports that the daemon is reachable.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "spaces reconciliation daemon",
	})
}

// Health reports registry-derived liveness detail.
func (h *Handlers) Health(c *gin.Context) {
	all := h.reg.GetAll()
	open, durable := 0, 0
	for _, s := range all {
		if s.IsOpen() {
			open++
		}
		if s.IsDurable() {
			durable++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"initialized":      h.reg.Initialized(),
		"sessions_total":   len(all),
		"sessions_open":    open,
		"sessions_durable": durable,
	})
}

// Metrics exposes the Prometheus text format.
func Metrics() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}

// ListSpaces returns every tracked space, applying the same filter and order
// the WebSocket's request_all_spaces query does (zero-tab sessions dropped,
// open sessions first, then most recently accessed).
func (h *Handlers) ListSpaces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"spaces": spaceList(h.reg.GetAll())})
}

// GetSpace returns a single space by durable session id.
func (h *Handlers) GetSpace(c *gin.Context) {
	reqLogger := middleware.RequestLogger(c, h.logger)

	sid, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		reqLogger.Debug("http: get space rejected", zap.String("id_param", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	s, ok := h.reg.Get(sid)
	if !ok {
		reqLogger.Debug("http: get space miss", zap.Int64("id", sid))
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}
