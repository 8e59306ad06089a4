package graph

import "encoding/json"

// The *Snapshot types are serializable mirrors of Session/Window/Pane,
// used only by internal/checkpoint: the live types hold unexported
// bookkeeping fields (nextWindowIndex, nextPaneIndex) and a *Scrollback
// with unexported internals, neither of which a struct-reflecting codec
// can round-trip directly.

type PaneSnapshot struct {
	ID         string
	WindowID   string
	Index      uint32
	Cols       uint16
	Rows       uint16
	State      PaneState
	Name       *string
	Title      *string
	Cwd        *string
	CreatedAt  uint64
	ScrollCap  int
	Scrollback []byte // nil unless the checkpoint writer opted in
	Metadata   map[string]string
	IsMirror   bool
}

type WindowSnapshot struct {
	ID            string
	SessionID     string
	Index         uint32
	Name          string
	CreatedAt     uint64
	Panes         []PaneSnapshot
	ActivePaneID  string
	Layout        *LayoutNode
	NextPaneIndex uint32
}

type SessionSnapshot struct {
	ID              string
	Name            string
	CreatedAt       uint64
	Windows         []WindowSnapshot
	ActiveWindowID  string
	Tags            []string
	Metadata        map[string]string
	Environment     map[string]string
	Status          json.RawMessage
	Inbox           []OrchestrationMessage
	Worktree        *WorktreeInfo
	NextWindowIndex uint32
}

// Snapshot exports the entire graph as checkpoint-ready snapshots.
// includeScrollback controls whether pane scrollback bytes are embedded
// ("scrollback optional").
func (g *Graph) Snapshot(includeScrollback bool) []SessionSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]SessionSnapshot, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, snapshotSession(s, includeScrollback))
	}
	return out
}

func snapshotSession(s *Session, includeScrollback bool) SessionSnapshot {
	tags := make([]string, 0, len(s.Tags))
	for t := range s.Tags {
		tags = append(tags, t)
	}
	windows := make([]WindowSnapshot, 0, len(s.Windows))
	for _, w := range s.Windows {
		windows = append(windows, snapshotWindow(w, includeScrollback))
	}
	return SessionSnapshot{
		ID:              s.ID,
		Name:            s.Name,
		CreatedAt:       s.CreatedAt,
		Windows:         windows,
		ActiveWindowID:  s.ActiveWindowID,
		Tags:            tags,
		Metadata:        copyEnvMap(s.Metadata),
		Environment:     copyEnvMap(s.Environment),
		Status:          append(json.RawMessage(nil), s.Status...),
		Inbox:           append([]OrchestrationMessage(nil), s.Inbox...),
		Worktree:        s.Worktree,
		NextWindowIndex: s.nextWindowIndex,
	}
}

func snapshotWindow(w *Window, includeScrollback bool) WindowSnapshot {
	panes := make([]PaneSnapshot, 0, len(w.Panes))
	for _, p := range w.Panes {
		panes = append(panes, snapshotPane(p, includeScrollback))
	}
	return WindowSnapshot{
		ID:            w.ID,
		SessionID:     w.SessionID,
		Index:         w.Index,
		Name:          w.Name,
		CreatedAt:     w.CreatedAt,
		Panes:         panes,
		ActivePaneID:  w.ActivePaneID,
		Layout:        CloneLayout(w.Layout),
		NextPaneIndex: w.nextPaneIndex,
	}
}

func snapshotPane(p *Pane, includeScrollback bool) PaneSnapshot {
	snap := PaneSnapshot{
		ID:        p.ID,
		WindowID:  p.WindowID,
		Index:     p.Index,
		Cols:      p.Cols,
		Rows:      p.Rows,
		State:     p.State,
		Name:      copyStringPtr(p.Name),
		Title:     copyStringPtr(p.Title),
		Cwd:       copyStringPtr(p.Cwd),
		CreatedAt: p.CreatedAt,
		Metadata:  copyEnvMap(p.Metadata),
		IsMirror:  p.IsMirror,
	}
	if p.Scrollback != nil {
		snap.ScrollCap = p.Scrollback.Cap()
		if includeScrollback {
			snap.Scrollback = p.Scrollback.Snapshot()
		}
	}
	return snap
}

// LoadSnapshot replaces the graph's entire contents with sessions,
// rebuilding the byName and panes secondary indices. Used once at startup
// by internal/recovery, before the graph is exposed to any handler.
func (g *Graph) LoadSnapshot(sessions []SessionSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions = make(map[string]*Session, len(sessions))
	g.byName = make(map[string]string, len(sessions))
	g.panes = make(map[string]paneLocation)

	for _, ss := range sessions {
		session := loadSession(ss)
		g.sessions[session.ID] = session
		g.byName[session.Name] = session.ID
		for _, w := range session.Windows {
			for _, p := range w.Panes {
				g.panes[p.ID] = paneLocation{sessionID: session.ID, windowID: w.ID}
			}
		}
	}
}

func loadSession(ss SessionSnapshot) *Session {
	tags := make(map[string]struct{}, len(ss.Tags))
	for _, t := range ss.Tags {
		tags[t] = struct{}{}
	}
	s := &Session{
		ID:              ss.ID,
		Name:            ss.Name,
		CreatedAt:       ss.CreatedAt,
		ActiveWindowID:  ss.ActiveWindowID,
		Tags:            tags,
		Metadata:        copyEnvMap(ss.Metadata),
		Environment:     copyEnvMap(ss.Environment),
		Status:          append(json.RawMessage(nil), ss.Status...),
		Inbox:           append([]OrchestrationMessage(nil), ss.Inbox...),
		Worktree:        ss.Worktree,
		nextWindowIndex: ss.NextWindowIndex,
	}
	s.Windows = make([]*Window, 0, len(ss.Windows))
	for _, ws := range ss.Windows {
		s.Windows = append(s.Windows, loadWindow(ws))
	}
	return s
}

func loadWindow(ws WindowSnapshot) *Window {
	w := &Window{
		ID:            ws.ID,
		SessionID:     ws.SessionID,
		Index:         ws.Index,
		Name:          ws.Name,
		CreatedAt:     ws.CreatedAt,
		ActivePaneID:  ws.ActivePaneID,
		Layout:        CloneLayout(ws.Layout),
		nextPaneIndex: ws.NextPaneIndex,
	}
	w.Panes = make([]*Pane, 0, len(ws.Panes))
	for _, ps := range ws.Panes {
		w.Panes = append(w.Panes, loadPane(ps))
	}
	return w
}

func loadPane(ps PaneSnapshot) *Pane {
	state := ps.State
	state.AgentSessionID = copyStringPtr(ps.State.AgentSessionID)
	state.Model = copyStringPtr(ps.State.Model)
	state.ExitCode = copyIntPtr(ps.State.ExitCode)
	return &Pane{
		ID:         ps.ID,
		WindowID:   ps.WindowID,
		Index:      ps.Index,
		Cols:       ps.Cols,
		Rows:       ps.Rows,
		State:      state,
		Name:       copyStringPtr(ps.Name),
		Title:      copyStringPtr(ps.Title),
		Cwd:        copyStringPtr(ps.Cwd),
		CreatedAt:  ps.CreatedAt,
		Scrollback: restoreScrollback(ps.ScrollCap, ps.Scrollback),
		Metadata:   copyEnvMap(ps.Metadata),
		IsMirror:   ps.IsMirror,
	}
}
