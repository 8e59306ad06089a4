package graph

import (
	"sync"

	"github.com/ccmux/ccmux/internal/id"
)

// paneLocation is the secondary pane->(session,window) index, kept
// current incrementally on every mutation rather than scanned for on
// every lookup.
type paneLocation struct {
	sessionID string
	windowID  string
}

// Graph is the single owned object-graph structure behind a reader/writer
// lock shared by every handler. Operations are synchronous
// and short: no blocking I/O is ever performed while mu is held.
type Graph struct {
	mu       sync.RWMutex
	sessions map[string]*Session // by id
	byName   map[string]string   // session name -> id, enforces name uniqueness
	panes    map[string]paneLocation
	waiters  map[string][]chan struct{}

	now id.Clock
}

// New creates an empty Graph. clock defaults to id.Wall when nil.
func New(clock id.Clock) *Graph {
	if clock == nil {
		clock = id.Wall
	}
	return &Graph{
		sessions: make(map[string]*Session),
		byName:   make(map[string]string),
		panes:    make(map[string]paneLocation),
		waiters:  make(map[string][]chan struct{}),
		now:      clock,
	}
}

// WaitForOutput returns a channel that closes the next time PushOutput
// writes to paneID (used by the Expect handler's wait loop). There is
// no history: a waiter registered
// after the output it wants to see already arrived will not be woken by
// that write, so callers check the scrollback before waiting, not after.
func (g *Graph) WaitForOutput(paneID string) <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.waiters[paneID] = append(g.waiters[paneID], ch)
	return ch
}

// notifyWaiters wakes every channel registered for paneID via
// WaitForOutput. Callers must hold mu.
func (g *Graph) notifyWaiters(paneID string) {
	chans := g.waiters[paneID]
	if len(chans) == 0 {
		return
	}
	delete(g.waiters, paneID)
	for _, ch := range chans {
		close(ch)
	}
}

func (g *Graph) nowMillis() uint64 {
	return id.UnixMillis(g.now())
}

// FindPane returns a deep-copied (Session, Window, Pane) triple for paneID,
// safe to read without holding the graph lock. Returns ErrPaneNotFound
// if unknown.
func (g *Graph) FindPane(paneID string) (*Session, *Window, *Pane, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findPaneLocked(paneID, true)
}

func (g *Graph) findPaneLocked(paneID string, clone bool) (*Session, *Window, *Pane, error) {
	loc, ok := g.panes[paneID]
	if !ok {
		return nil, nil, nil, ErrPaneNotFound
	}
	session, ok := g.sessions[loc.sessionID]
	if !ok {
		return nil, nil, nil, ErrPaneNotFound
	}
	for _, w := range session.Windows {
		if w.ID != loc.windowID {
			continue
		}
		for _, p := range w.Panes {
			if p.ID != paneID {
				continue
			}
			if clone {
				cs := cloneSession(session)
				cw, cp := findInClone(cs, loc.windowID, paneID)
				return cs, cw, cp, nil
			}
			return session, w, p, nil
		}
	}
	return nil, nil, nil, ErrPaneNotFound
}

func findInClone(s *Session, windowID, paneID string) (*Window, *Pane) {
	for _, w := range s.Windows {
		if w.ID != windowID {
			continue
		}
		for _, p := range w.Panes {
			if p.ID == paneID {
				return w, p
			}
		}
	}
	return nil, nil
}

// withPaneLocked runs fn against the live (not cloned) session/window/pane
// under the write lock. Used internally by mutating operations that need
// direct access (PushOutput, ResizePane, sideband handlers via graph
// methods) without paying for a deep clone.
func (g *Graph) withPaneLocked(paneID string, fn func(*Session, *Window, *Pane) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, w, p, err := g.findPaneLocked(paneID, false)
	if err != nil {
		return err
	}
	return fn(s, w, p)
}

func copyEnvMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTagSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
