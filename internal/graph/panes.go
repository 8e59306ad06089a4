package graph

import "github.com/ccmux/ccmux/internal/id"

const (
	defaultScrollbackLines = 1000
)

// CreatePane creates a pane in window with default 80x24 dimensions,
// assigning the next pane index. Used by session/window bootstrap
// paths, which tolerate the pane existing without a PTY if spawning
// fails.
func (g *Graph) CreatePane(windowID string) (string, *Pane, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, window, err := g.findWindowLocked(windowID)
	if err != nil {
		return "", nil, err
	}

	index := window.nextPaneIndex
	window.nextPaneIndex++
	pane := &Pane{
		ID:         id.New(),
		WindowID:   windowID,
		Index:      index,
		Cols:       80,
		Rows:       24,
		State:      NormalState(),
		CreatedAt:  g.nowMillis(),
		Scrollback: NewScrollback(defaultScrollbackLines),
		Metadata:   map[string]string{},
	}
	window.Panes = append(window.Panes, pane)
	if window.ActivePaneID == "" {
		window.ActivePaneID = pane.ID
	}
	if window.Layout == nil {
		window.Layout = newLeafLayout(pane.ID)
	}
	g.panes[pane.ID] = paneLocation{sessionID: session.ID, windowID: windowID}
	return session.ID, clonePane(pane), nil
}

// SplitPane creates a new pane as a sibling of sourcePaneID within the
// same window, updating the layout tree. cwd, if non-nil,
// seeds the new pane's Cwd field; the precise screen geometry is left to
// the client.
func (g *Graph) SplitPane(sourcePaneID string, direction SplitDirection, cwd *string) (sessionID, windowID string, newPane *Pane, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, window, source, ferr := g.findPaneLocked(sourcePaneID, false)
	if ferr != nil {
		return "", "", nil, ferr
	}

	index := window.nextPaneIndex
	window.nextPaneIndex++
	pane := &Pane{
		ID:         id.New(),
		WindowID:   window.ID,
		Index:      index,
		Cols:       source.Cols,
		Rows:       source.Rows,
		State:      NormalState(),
		Cwd:        copyStringPtr(cwd),
		CreatedAt:  g.nowMillis(),
		Scrollback: NewScrollback(defaultScrollbackLines),
		Metadata:   map[string]string{},
	}
	window.Panes = append(window.Panes, pane)
	window.Layout, _ = splitLayout(window.Layout, sourcePaneID, direction, pane.ID)
	g.panes[pane.ID] = paneLocation{sessionID: session.ID, windowID: window.ID}

	return session.ID, window.ID, clonePane(pane), nil
}

// RemovePane removes a pane from the graph outright (ClosePane handler),
// rebalancing the window's active-pane reference (next sibling by
// index; if none, previous sibling; else none) and collapsing any
// single-child split left in the layout tree. The caller tears down the
// PTY and isolation directory outside the graph lock.
func (g *Graph) RemovePane(paneID string) (sessionID, windowID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, window, _, ferr := g.findPaneLocked(paneID, false)
	if ferr != nil {
		return "", "", ferr
	}

	idx := -1
	for i, p := range window.Panes {
		if p.ID == paneID {
			idx = i
			break
		}
	}
	window.Panes = append(window.Panes[:idx], window.Panes[idx+1:]...)
	window.Layout = removeFromLayout(window.Layout, paneID)
	delete(g.panes, paneID)

	if window.ActivePaneID == paneID {
		window.ActivePaneID = pickSiblingPane(window.Panes, idx)
	}
	return session.ID, window.ID, nil
}

func pickSiblingPane(panes []*Pane, removedIdx int) string {
	if len(panes) == 0 {
		return ""
	}
	if removedIdx < len(panes) {
		return panes[removedIdx].ID
	}
	return panes[len(panes)-1].ID
}

// SetActivePane makes paneID the active pane of windowID, verifying it
// actually belongs to that window.
func (g *Graph) SetActivePane(windowID, paneID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, window, err := g.findWindowLocked(windowID)
	if err != nil {
		return err
	}
	for _, p := range window.Panes {
		if p.ID == paneID {
			window.ActivePaneID = paneID
			return nil
		}
	}
	return ErrPaneNotFound
}

// ResizePane updates a pane's dimensions.
func (g *Graph) ResizePane(paneID string, cols, rows uint16) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.Cols = cols
		p.Rows = rows
		return nil
	})
}

// PushOutput appends bytes to a pane's scrollback ring and wakes any
// Expect-style waiter registered for this pane.
func (g *Graph) PushOutput(paneID string, data []byte) error {
	err := g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.Scrollback.Write(data)
		return nil
	})
	if err == nil {
		g.mu.Lock()
		g.notifyWaiters(paneID)
		g.mu.Unlock()
	}
	return err
}

// ReadScrollback returns a snapshot of a pane's scrollback bytes.
func (g *Graph) ReadScrollback(paneID string) ([]byte, error) {
	var out []byte
	err := g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		out = p.Scrollback.Snapshot()
		return nil
	})
	return out, err
}

// SetPaneState transitions a pane's PaneState (e.g. Normal -> Exited,
// or an agent activity update relayed from the external AI-state
// detector).
func (g *Graph) SetPaneState(paneID string, state PaneState) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.State = state
		return nil
	})
}

// SetPaneTitle sets the title reported by the pane's process (e.g. via an
// OSC title-set sequence upstream of the sideband parser, or restoration).
func (g *Graph) SetPaneTitle(paneID, title string) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.Title = &title
		return nil
	})
}

// SetPaneName sets the user-facing pane name (RenamePane handler).
func (g *Graph) SetPaneName(paneID, name string) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.Name = &name
		return nil
	})
}

// SetPaneCwd records the pane's working directory, used by restoration
// to respawn into the same directory.
func (g *Graph) SetPaneCwd(paneID, cwd string) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		p.Cwd = &cwd
		return nil
	})
}

// MergePaneMetadata merges kv into a pane's metadata map, used by the
// sideband `capabilities` command.
func (g *Graph) MergePaneMetadata(paneID string, kv map[string]string) error {
	return g.withPaneLocked(paneID, func(_ *Session, _ *Window, p *Pane) error {
		for k, v := range kv {
			p.Metadata[k] = v
		}
		return nil
	})
}

// ListAllPanes returns every pane across all sessions (or just
// sessionFilter, when non-empty), flattened for the ListAllPanes
// request.
func (g *Graph) ListAllPanes(sessionFilter string) ([]*Pane, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if sessionFilter != "" {
		if _, ok := g.sessions[sessionFilter]; !ok {
			return nil, ErrSessionNotFound
		}
	}

	var out []*Pane
	for _, s := range g.sessions {
		if sessionFilter != "" && s.ID != sessionFilter {
			continue
		}
		for _, w := range s.Windows {
			for _, p := range w.Panes {
				out = append(out, clonePane(p))
			}
		}
	}
	return out, nil
}

// PaneCountInSession reports the number of live panes in a session,
// the quantity internal/sideband's max_panes_per_session check limits.
func (g *Graph) PaneCountInSession(sessionID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	session, ok := g.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	n := 0
	for _, w := range session.Windows {
		n += len(w.Panes)
	}
	return n, nil
}
