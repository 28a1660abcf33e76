package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/errs"
	"github.com/codedread/spaces/internal/logging"
	"github.com/codedread/spaces/internal/metrics"
	"github.com/codedread/spaces/internal/reconcile"
	"github.com/codedread/spaces/internal/registry"
	"github.com/codedread/spaces/internal/shared/id"
	"github.com/codedread/spaces/internal/shared/utils"
	"github.com/codedread/spaces/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves the control API's single WebSocket endpoint, dispatching
// each inbound action to the reconciliation engine or the registry's
// read-only tier.
type Handler struct {
	engine    *reconcile.Engine
	reg       *registry.Registry
	logger    *logging.Logger
	metrics   *metrics.Metrics
	validator *utils.JSONSizeValidator
}

// New constructs a Handler.
func New(engine *reconcile.Engine, reg *registry.Registry, logger *logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:    engine,
		reg:       reg,
		logger:    logger,
		metrics:   m,
		validator: utils.DefaultWSValidator(),
	}
}

// HandleConnection upgrades the request and serves messages until the
// connection drops.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := id.NewConnectionID()
	connLogger := h.logger.WithConnectionID(connID)

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	connLogger.Debug("ws: connection opened")
	defer connLogger.Debug("ws: connection closed")

	ctx := c.Request.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				connLogger.Debug("ws: read error", zap.Error(err))
			}
			return
		}

		if err := h.validator.ValidateSize(data); err != nil {
			h.sendError(conn, "unknown", "payload too large")
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "unknown", "malformed message")
			continue
		}

		h.metrics.RecordWSMessage("in", msg.Action)
		h.dispatchFor(ctx, connLogger, conn, msg)
	}
}

// dispatchFor routes one inbound message, logging failures against the
// connection-scoped logger so a request's trail stays grouped by
// connection id.
func (h *Handler) dispatchFor(ctx context.Context, connLogger *logging.Logger, conn *websocket.Conn, msg inbound) {
	result, err := h.route(ctx, msg)
	if err != nil {
		var malformed *errs.MalformedRequest
		if errors.As(err, &malformed) {
			// Missing required params: dropped with no response, per the
			// error handling design's "absorbed silently" category.
			return
		}
		h.sendErrorValue(connLogger, conn, msg.Action, err)
		return
	}
	h.send(conn, msg.Action, result)
}

// route maps one inbound action to its handler, returning the JSON-ready
// result or a typed error for the caller to translate onto the wire.
func (h *Handler) route(ctx context.Context, msg inbound) (interface{}, error) {
	switch msg.Action {

	// --- queries ---
	case "request_session_presence":
		exists, isOpen := h.engine.Presence(ctx, msg.Name)
		return gin.H{"exists": exists, "is_open": isOpen}, nil

	case "request_space_from_window_id":
		wid, ok := canonInt(msg.WindowID)
		if !ok {
			return spaceOf(nil), nil
		}
		s, _ := h.reg.GetByWindow(ctx, wid)
		return spaceOf(s), nil

	case "request_current_space":
		s, _ := h.engine.CurrentSpace()
		return spaceOf(s), nil

	case "request_space_from_session_id":
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return spaceOf(nil), nil
		}
		s, _ := h.reg.Get(sid)
		return spaceOf(s), nil

	case "request_all_spaces":
		sessions := sortedAllSpaces(h.reg.GetAll())
		views := make([]wireSpace, len(sessions))
		for i, s := range sessions {
			views[i] = spaceOf(s)
		}
		return views, nil

	case "request_tab_detail":
		tabID, ok := canonInt(msg.TabID)
		if !ok {
			return false, nil
		}
		tab, found := h.engine.TabDetail(tabID)
		if !found {
			return false, nil
		}
		return tab, nil

	// --- mutations ---
	case "save_new_session":
		wid, hasWid := canonInt(msg.WindowID)
		var widPtr *int
		var tabs []types.Tab
		if hasWid {
			widPtr = &wid
			if entry, ok := h.reg.GetByWindow(ctx, wid); ok {
				tabs = entry.Tabs
			}
		}
		s, err := h.engine.SaveNewSession(ctx, msg.Name, tabs, widPtr, nil, canonBool(msg.DeleteOld))
		return spaceOf(s), err

	case "update_session_name":
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing sid"}
		}
		s, err := h.engine.UpdateSessionName(ctx, sid, msg.Name, canonBool(msg.DeleteOld))
		return spaceOf(s), err

	case "delete_session":
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return false, nil
		}
		return h.engine.DeleteSession(ctx, sid), nil

	case "load_session":
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing sid"}
		}
		s, err := h.engine.Touch(ctx, sid)
		return spaceOf(s), err

	case "load_window":
		wid, ok := canonInt(msg.WindowID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing wid"}
		}
		s, found := h.engine.TouchWindow(wid)
		if !found {
			return spaceOf(nil), nil
		}
		return spaceOf(s), nil

	case "switch_to_space":
		if sid, ok := canonInt64(msg.SessionID); ok {
			s, err := h.engine.Touch(ctx, sid)
			return spaceOf(s), err
		}
		if wid, ok := canonInt(msg.WindowID); ok {
			s, found := h.engine.TouchWindow(wid)
			if !found {
				return spaceOf(nil), nil
			}
			return spaceOf(s), nil
		}
		return spaceOf(nil), &errs.MalformedRequest{Reason: "missing sid or wid"}

	case "move_tab_to_session":
		tabID, ok := canonInt(msg.TabID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing tab_id"}
		}
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing sid"}
		}
		tab, found := h.engine.TabDetail(tabID)
		if !found {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "unknown tab id"}
		}
		s, err := h.engine.AppendTabToSession(ctx, sid, tab)
		return spaceOf(s), err

	case "add_link_to_session":
		sid, ok := canonInt64(msg.SessionID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing sid"}
		}
		s, err := h.engine.AppendTabToSession(ctx, sid, types.Tab{URL: msg.URL})
		return spaceOf(s), err

	case "move_tab_to_window":
		tabID, ok := canonInt(msg.TabID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing tab_id"}
		}
		wid, ok := canonInt(msg.WindowID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing wid"}
		}
		tab, found := h.engine.TabDetail(tabID)
		if !found {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "unknown tab id"}
		}
		s, err := h.engine.AppendTabToWindow(ctx, wid, tab)
		return spaceOf(s), err

	case "add_link_to_window":
		wid, ok := canonInt(msg.WindowID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing wid"}
		}
		s, err := h.engine.AppendTabToWindow(ctx, wid, types.Tab{URL: msg.URL})
		return spaceOf(s), err

	case "move_tab_to_new_session":
		tabID, ok := canonInt(msg.TabID)
		if !ok {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "missing tab_id"}
		}
		tab, found := h.engine.TabDetail(tabID)
		if !found {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "unknown tab id"}
		}
		s, err := h.engine.SaveNewSession(ctx, msg.Name, []types.Tab{tab}, nil, nil, false)
		return spaceOf(s), err

	case "add_link_to_new_session":
		s, err := h.engine.SaveNewSession(ctx, msg.Name, []types.Tab{{URL: msg.URL}}, nil, nil, false)
		return spaceOf(s), err

	case "import_new_session":
		s, err := h.engine.ImportNewSession(ctx, msg.URLList, canonBool(msg.DeleteOld))
		return spaceOf(s), err

	case "restore_from_backup":
		var view types.SpaceView
		if err := json.Unmarshal(msg.Space, &view); err != nil {
			return spaceOf(nil), &errs.MalformedRequest{Reason: "malformed space payload"}
		}
		s, err := h.engine.RestoreFromBackup(ctx, view, canonBool(msg.DeleteOld))
		return spaceOf(s), err

	// --- UI control: acknowledged, no engine state change ---
	case "request_show_spaces", "request_show_switcher", "request_show_mover",
		"request_show_keyboard_shortcuts", "request_close":
		return gin.H{"ok": true}, nil

	case "generate_popup_params":
		return h.popupParams(msg), nil

	default:
		return nil, &errs.InvariantViolation{Reason: "unknown action"}
	}
}

// popupParams assembles the small context bundle the popup UI needs to
// render itself: the currently focused space plus, if the caller named a
// tab URL, the matching tab within it.
func (h *Handler) popupParams(msg inbound) gin.H {
	current, _ := h.engine.CurrentSpace()
	params := gin.H{
		"requested_action": msg.TabURL,
		"current_space":    spaceOf(current),
	}
	if msg.TabURL != "" && current != nil {
		for _, t := range current.Tabs {
			if t.URL == msg.TabURL {
				params["matched_tab"] = t
				break
			}
		}
	}
	return params
}

func (h *Handler) send(conn *websocket.Conn, action string, payload interface{}) {
	h.metrics.RecordWSMessage("out", action)
	if err := conn.WriteJSON(payload); err != nil {
		h.logger.Debug("ws: write failed", zap.String("action", action), zap.Error(err))
	}
}

// sendErrorValue translates a typed engine error onto the wire: a
// NameConflict gets a structured payload so the caller can retry with
// delete_old, everything else degrades to the bare false the original
// protocol uses for "mutation failed".
func (h *Handler) sendErrorValue(connLogger *logging.Logger, conn *websocket.Conn, action string, err error) {
	var conflict *errs.NameConflict
	if errors.As(err, &conflict) {
		h.send(conn, action, errPayload{Error: "name_conflict", ExistingID: conflict.ExistingID})
		return
	}
	connLogger.Debug("ws: action failed", zap.String("action", action), zap.Error(err))
	h.send(conn, action, false)
}

func (h *Handler) sendError(conn *websocket.Conn, action, message string) {
	h.send(conn, action, errPayload{Error: message})
}
