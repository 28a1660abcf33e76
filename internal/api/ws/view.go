package ws

import (
	"encoding/json"
	"sort"

	"github.com/codedread/spaces/internal/types"
)

// wireSpace marshals a session's Space view the way the extension expects:
// absent session id/window id/name as the literal false, not JSON null,
// and a bare false instead of an object when the session itself is absent.
type wireSpace struct {
	session *types.Session
}

func spaceOf(s *types.Session) wireSpace { return wireSpace{session: s} }

func (w wireSpace) MarshalJSON() ([]byte, error) {
	if w.session == nil {
		return []byte("false"), nil
	}
	s := w.session

	out := struct {
		SessionID interface{} `json:"sessionId"`
		WindowID  interface{} `json:"windowId"`
		Name      interface{} `json:"name"`
		Tabs      []types.Tab `json:"tabs"`
		History   interface{} `json:"history"`
	}{
		Tabs: s.Tabs,
	}
	if s.Tabs == nil {
		out.Tabs = []types.Tab{}
	}
	if s.ID != nil {
		out.SessionID = *s.ID
	} else {
		out.SessionID = false
	}
	if s.WindowID != nil {
		out.WindowID = *s.WindowID
	} else {
		out.WindowID = false
	}
	if s.Name != nil {
		out.Name = *s.Name
	} else {
		out.Name = false
	}
	if len(s.History) > 0 {
		out.History = s.History
	} else {
		out.History = false
	}
	return json.Marshal(out)
}

// sortedAllSpaces applies request_all_spaces's filter-then-sort rule:
// sessions with no tabs are dropped, open sessions sort before closed ones,
// and within each group last_access sorts descending (most recently used
// first).
func sortedAllSpaces(sessions []*types.Session) []*types.Session {
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
