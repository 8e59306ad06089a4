package handlers

import (
	"regexp"
	"strings"
	"time"

	"github.com/ccmux/ccmux/internal/errs"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wal"
	"github.com/ccmux/ccmux/internal/wire"
)

const defaultExpectTimeout = 5 * time.Second

// handleExpect waits for pattern to appear in pane's scrollback, woken
// by graph.WaitForOutput rather than polling. It checks the scrollback
// once before waiting (output that
// arrived before the request was received must still count), then loops
// wait/check until the timeout elapses.
func (d *Dispatcher) handleExpect(msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.ExpectReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}
	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		return "", nil, errs.New(errs.InvalidOperation, "invalid expect pattern: "+err.Error())
	}

	timeout := defaultExpectTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	deadline := time.After(timeout)

	for {
		line, found, ferr := d.matchScrollback(req.PaneID, re)
		if ferr != nil {
			return "", nil, ferr
		}
		if found {
			return wire.TypeExpectMatch, wire.ExpectMatchResp{PaneID: req.PaneID, Line: line}, nil
		}

		wake := d.deps.Graph.WaitForOutput(req.PaneID)
		select {
		case <-wake:
			continue
		case <-deadline:
			return "", nil, errs.New(errs.ResponseTimeout, "expect pattern did not match before timeout")
		}
	}
}

func (d *Dispatcher) matchScrollback(paneID string, re *regexp.Regexp) (string, bool, *errs.Error) {
	data, err := d.deps.Graph.ReadScrollback(paneID)
	if err != nil {
		return "", false, errs.FromGraphError(err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if re.MatchString(line) {
			return line, true, nil
		}
	}
	return "", false, nil
}

// handleRunPipeline executes steps in order, one graph operation per step
// rather than one continuous lock acquisition, stopping
// at the first failure and reporting which step failed rather than
// surfacing a top-level wire Error — the caller needs to know how far the
// pipeline got, not just that it didn't finish.
func (d *Dispatcher) handleRunPipeline(cc clientCtx, msg wire.ClientMessage) (string, any, *errs.Error) {
	var req wire.RunPipelineReq
	if err := msg.Decode(&req); err != nil {
		return "", nil, decodeErr(err)
	}

	for i, step := range req.Steps {
		if err := d.runPipelineStep(cc, req.SessionID, step); err != "" {
			return wire.TypePipelineResult, wire.PipelineResultResp{
				Completed:  i,
				FailedStep: i + 1,
				Error:      err,
			}, nil
		}
	}
	return wire.TypePipelineResult, wire.PipelineResultResp{Completed: len(req.Steps)}, nil
}

func (d *Dispatcher) runPipelineStep(cc clientCtx, sessionID string, step wire.PipelineStep) string {
	switch step.Kind {
	case "spawn":
		direction := graph.SplitVertical
		if step.Direction == string(graph.SplitHorizontal) {
			direction = graph.SplitHorizontal
		}
		var cwd *string
		if step.Cwd != "" {
			cwd = &step.Cwd
		}
		_, windowID, pane, err := d.deps.Graph.SplitPane(step.PaneID, direction, cwd)
		if err != nil {
			return err.Error()
		}
		if werr := d.appendWAL(wal.PaneCreated, wal.PaneCreatedPayload{WindowID: windowID, PaneID: pane.ID, Index: pane.Index, SourcePane: step.PaneID, Cols: pane.Cols, Rows: pane.Rows, Cwd: step.Cwd}); werr != nil {
			return werr.Error()
		}
		session, serr := d.deps.Graph.GetSession(sessionID)
		if serr != nil {
			return serr.Error()
		}
		if err := d.spawnPane(session, pane, spawnConfig{command: step.Command, cwd: step.Cwd}); err != nil {
			return err.Error()
		}
		return ""

	case "input":
		if werr := d.checkArbiter(cc, resourceForPane(step.PaneID), "input"); werr != nil {
			return werr.Error()
		}
		if _, err := d.deps.PTY.Write(step.PaneID, step.Data); err != nil {
			return err.Error()
		}
		return ""

	case "expect":
		re, err := regexp.Compile(step.Pattern)
		if err != nil {
			return "invalid expect pattern: " + err.Error()
		}
		timeout := defaultExpectTimeout
		if step.TimeoutMs > 0 {
			timeout = time.Duration(step.TimeoutMs) * time.Millisecond
		}
		deadline := time.After(timeout)
		for {
			_, found, ferr := d.matchScrollback(step.PaneID, re)
			if ferr != nil {
				return ferr.Error()
			}
			if found {
				return ""
			}
			wake := d.deps.Graph.WaitForOutput(step.PaneID)
			select {
			case <-wake:
				continue
			case <-deadline:
				return "expect pattern did not match before timeout"
			}
		}

	case "sleep":
		time.Sleep(time.Duration(step.Millis) * time.Millisecond)
		return ""

	default:
		return "unknown pipeline step kind " + step.Kind
	}
}
