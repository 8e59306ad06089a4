package wire

import "github.com/ccmux/ccmux/internal/graph"

// FromPane translates a live graph.Pane snapshot into its wire shape.
// Called by the handlers and the sideband executor; graph, wal and
// checkpoint never import wire.
func FromPane(p *graph.Pane) Pane {
	out := Pane{
		ID:        p.ID,
		WindowID:  p.WindowID,
		Index:     p.Index,
		Cols:      p.Cols,
		Rows:      p.Rows,
		State:     fromPaneState(p.State),
		CreatedAt: p.CreatedAt,
		Metadata:  p.Metadata,
		IsMirror:  p.IsMirror,
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Cwd != nil {
		out.Cwd = *p.Cwd
	}
	return out
}

func fromPaneState(s graph.PaneState) PaneState {
	out := PaneState{
		Kind:      string(s.Kind),
		AgentType: s.AgentType,
		Activity:  string(s.Activity),
		ExitCode:  s.ExitCode,
	}
	if s.AgentSessionID != nil {
		out.AgentSessionID = *s.AgentSessionID
	}
	if s.Model != nil {
		out.Model = *s.Model
	}
	return out
}

// FromWindow translates a live graph.Window (with its Panes already
// populated) into its wire shape.
func FromWindow(w *graph.Window) Window {
	out := Window{
		ID:           w.ID,
		SessionID:    w.SessionID,
		Index:        w.Index,
		Name:         w.Name,
		CreatedAt:    w.CreatedAt,
		ActivePaneID: w.ActivePaneID,
	}
	for _, p := range w.Panes {
		out.Panes = append(out.Panes, FromPane(p))
	}
	return out
}

// FromSession translates a live graph.Session into its wire shape.
func FromSession(s *graph.Session) Session {
	out := Session{
		ID:             s.ID,
		Name:           s.Name,
		CreatedAt:      s.CreatedAt,
		ActiveWindowID: s.ActiveWindowID,
		Metadata:       s.Metadata,
		Environment:    s.Environment,
		Status:         s.Status,
	}
	for t := range s.Tags {
		out.Tags = append(out.Tags, t)
	}
	for _, w := range s.Windows {
		out.Windows = append(out.Windows, FromWindow(w))
	}
	return out
}
