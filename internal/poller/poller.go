// Package poller owns the live pane_id -> *ptyio.Handle table and the one
// reader goroutine per pane that drains PTY output: feed bytes through
// the sideband parser, append what remains to the pane's scrollback and
// the WAL, and tee it to attached clients. One goroutine per PTY, Read
// until EOF.
package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/sideband"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

const readBufSize = 4096

// Broadcaster is the subset of internal/registry the poller needs to push
// pane output and lifecycle events to attached clients.
type Broadcaster interface {
	BroadcastToSession(sessionID string, msg any) int
}

// Options configures a Poller.
type Options struct {
	// WAL, if non-nil, receives a PaneOutput record for every chunk read
	// before it reaches the graph/clients (the WAL record precedes the
	// visible effect). Nil disables WAL persistence of PTY bytes
	// entirely (distinct from PersistPaneOutput, which only controls
	// whether the *data* is retained or elided — see Append call below).
	WAL *wal.WAL
	// PersistPaneOutput mirrors config.WAL.PersistPaneOutput: when false,
	// the PaneOutput record handed to the WAL carries no Data, and a WAL
	// opened with the same setting drops PaneOutput records altogether,
	// so nothing of the pane output reaches the log.
	PersistPaneOutput bool
	IsolationRoot     string
	Log               *slog.Logger
}

// Poller tracks every pane's live PTY handle and sideband parser state,
// and implements sideband.PTYPort so the shared Executor can reach back
// into it.
type Poller struct {
	graph     *graph.Graph
	broadcast Broadcaster
	executor  *sideband.Executor
	opts      Options
	log       *slog.Logger

	mu      sync.Mutex
	handles map[string]*ptyio.Handle
	done    map[string]chan struct{}
}

// New builds a Poller. The executor is wired in after construction (via
// SetExecutor) because sideband.NewExecutor itself needs a PTYPort — the
// caller constructs the Poller, builds the Executor with it, then calls
// SetExecutor to close the cycle.
func New(g *graph.Graph, broadcast Broadcaster, opts Options) *Poller {
	return &Poller{
		graph:     g,
		broadcast: broadcast,
		opts:      opts,
		log:       opts.Log,
		handles:   make(map[string]*ptyio.Handle),
		done:      make(map[string]chan struct{}),
	}
}

// SetExecutor wires the sideband executor used to dispatch commands
// extracted from PTY output. Must be called before Track.
func (p *Poller) SetExecutor(e *sideband.Executor) {
	p.executor = e
}

// Track registers handle as paneID's live PTY and starts its reader
// goroutine. sessionID is cached for broadcast addressing.
func (p *Poller) Track(paneID, sessionID string, handle *ptyio.Handle) {
	done := make(chan struct{})
	p.mu.Lock()
	p.handles[paneID] = handle
	p.done[paneID] = done
	p.mu.Unlock()

	go p.readLoop(paneID, sessionID, handle, done)
}

func (p *Poller) readLoop(paneID, sessionID string, handle *ptyio.Handle, done chan struct{}) {
	defer close(done)

	parser := sideband.NewParser(p.log)
	buf := make([]byte, readBufSize)

	for {
		n, readErr := handle.Read(buf)
		if n > 0 {
			p.ingest(paneID, sessionID, parser, buf[:n])
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				p.warnf("pane %s: read error: %v", paneID, readErr)
			}
			break
		}
	}

	p.onExit(paneID, sessionID, handle)
}

func (p *Poller) ingest(paneID, sessionID string, parser *sideband.Parser, chunk []byte) {
	clean, cmds := parser.Feed(chunk)

	if len(clean) > 0 {
		if p.opts.WAL != nil {
			payload := wal.PaneOutputPayload{PaneID: paneID}
			if p.opts.PersistPaneOutput {
				payload.Data = clean
			}
			if _, err := p.opts.WAL.Append(wal.PaneOutput, payload); err != nil {
				p.warnf("pane %s: wal append failed: %v", paneID, err)
			}
		}
		if err := p.graph.PushOutput(paneID, clean); err != nil {
			p.warnf("pane %s: push output failed: %v", paneID, err)
		}
		p.broadcast.BroadcastToSession(sessionID, wire.OutputPush{PaneID: paneID, Data: clean})
	}

	for _, cmd := range cmds {
		if p.executor != nil {
			p.executor.Dispatch(paneID, "", cmd)
		}
	}
}

// onExit transitions the pane to Exited state and notifies clients. The
// pane itself is left in the graph (destruction is an explicit
// operation, not an implicit consequence of the child process dying) so a
// client can inspect the exit code before issuing ClosePane / the
// sideband `control action=close`.
func (p *Poller) onExit(paneID, sessionID string, handle *ptyio.Handle) {
	p.mu.Lock()
	delete(p.handles, paneID)
	p.mu.Unlock()

	code, err := handle.ExitCode()
	var exitCode *int
	if err == nil {
		exitCode = &code
	}

	if err := p.graph.SetPaneState(paneID, graph.ExitedState(exitCode)); err != nil {
		p.warnf("pane %s: set exited state: %v", paneID, err)
	}
	if p.opts.WAL != nil {
		raw, _ := stateJSON(graph.ExitedState(exitCode))
		if _, err := p.opts.WAL.Append(wal.PaneStateChanged, wal.PaneStateChangedPayload{PaneID: paneID, State: raw}); err != nil {
			p.warnf("pane %s: wal append (exit) failed: %v", paneID, err)
		}
	}
	if p.opts.IsolationRoot != "" {
		_ = recovery.RemoveIsolationDir(p.opts.IsolationRoot, paneID)
	}

	p.broadcast.BroadcastToSession(sessionID, wire.PaneClosedPush{SessionID: sessionID, PaneID: paneID, ExitCode: exitCode})
}

func (p *Poller) warnf(format string, args ...any) {
	if p.log != nil {
		p.log.Warn("poller: " + fmt.Sprintf(format, args...))
	}
}

// -- sideband.PTYPort --------------------------------------------------

// Write delivers bytes to paneID's PTY stdin.
func (p *Poller) Write(paneID string, data []byte) (int, error) {
	h, err := p.handle(paneID)
	if err != nil {
		return 0, err
	}
	return h.Write(data)
}

// Resize forwards a size change to paneID's live PTY.
func (p *Poller) Resize(paneID string, cols, rows uint16) error {
	h, err := p.handle(paneID)
	if err != nil {
		return err
	}
	return h.Resize(cols, rows)
}

// Spawn starts cfg behind a new PTY for paneID and begins polling it.
// sessionID is recovered from the graph so callers (the sideband spawn
// handler, which already has it) don't have to thread it through a second
// path; Track is called with the graph's own record to stay consistent.
func (p *Poller) Spawn(paneID string, cfg ptyio.Config) error {
	session, _, _, err := p.graph.FindPane(paneID)
	if err != nil {
		return err
	}
	h, err := ptyio.Spawn(cfg)
	if err != nil {
		return err
	}
	p.Track(paneID, session.ID, h)
	return nil
}

// Kill terminates paneID's live PTY, if any. Killing an already-exited or
// untracked pane is a no-op: the reader goroutine's own onExit already
// handled (or will handle) the transition.
func (p *Poller) Kill(paneID string) error {
	h, err := p.handle(paneID)
	if err != nil {
		return nil
	}
	return h.Kill()
}

func stateJSON(state graph.PaneState) (json.RawMessage, error) {
	raw, err := json.Marshal(state)
	return json.RawMessage(raw), err
}

func (p *Poller) handle(paneID string) (*ptyio.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[paneID]
	if !ok {
		return nil, fmt.Errorf("poller: no live pty for pane %s", paneID)
	}
	return h, nil
}

// Shutdown kills every tracked PTY and waits for its reader goroutine to
// observe EOF, used during graceful daemon quiesce.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	handles := make(map[string]*ptyio.Handle, len(p.handles))
	dones := make([]chan struct{}, 0, len(p.done))
	for id, h := range p.handles {
		handles[id] = h
	}
	for _, d := range p.done {
		dones = append(dones, d)
	}
	p.mu.Unlock()

	for _, h := range handles {
		_ = h.Kill()
	}
	for _, d := range dones {
		<-d
	}
}
