package graph

// cloneSession deep-copies a session so callers can read it without holding
// Graph.mu. Scrollback rings are intentionally NOT cloned: they're an
// internal resource only safe to touch under the graph lock. Readers that
// need scrollback bytes call Graph.ReadPane instead.
func cloneSession(s *Session) *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:             s.ID,
		Name:           s.Name,
		CreatedAt:      s.CreatedAt,
		ActiveWindowID: s.ActiveWindowID,
		Tags:           copyTagSet(s.Tags),
		Metadata:       copyEnvMap(s.Metadata),
		Environment:    copyEnvMap(s.Environment),
		Status:         append([]byte(nil), s.Status...),
		Inbox:          append([]OrchestrationMessage(nil), s.Inbox...),
	}
	if s.Worktree != nil {
		wt := *s.Worktree
		out.Worktree = &wt
	}
	out.Windows = make([]*Window, 0, len(s.Windows))
	for _, w := range s.Windows {
		out.Windows = append(out.Windows, cloneWindow(w))
	}
	return out
}

func cloneWindow(w *Window) *Window {
	if w == nil {
		return nil
	}
	out := &Window{
		ID:           w.ID,
		SessionID:    w.SessionID,
		Index:        w.Index,
		Name:         w.Name,
		CreatedAt:    w.CreatedAt,
		ActivePaneID: w.ActivePaneID,
		Layout:       CloneLayout(w.Layout),
	}
	out.Panes = make([]*Pane, 0, len(w.Panes))
	for _, p := range w.Panes {
		out.Panes = append(out.Panes, clonePane(p))
	}
	return out
}

func clonePane(p *Pane) *Pane {
	if p == nil {
		return nil
	}
	state := p.State
	state.AgentSessionID = copyStringPtr(p.State.AgentSessionID)
	state.Model = copyStringPtr(p.State.Model)
	state.ExitCode = copyIntPtr(p.State.ExitCode)
	return &Pane{
		ID:        p.ID,
		WindowID:  p.WindowID,
		Index:     p.Index,
		Cols:      p.Cols,
		Rows:      p.Rows,
		State:     state,
		Name:      copyStringPtr(p.Name),
		Title:     copyStringPtr(p.Title),
		Cwd:       copyStringPtr(p.Cwd),
		CreatedAt: p.CreatedAt,
		Metadata:  copyEnvMap(p.Metadata),
		IsMirror:  p.IsMirror,
		// Scrollback intentionally omitted, see cloneSession's doc comment.
	}
}
