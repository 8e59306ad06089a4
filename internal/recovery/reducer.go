package recovery

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/wal"
)

// Apply folds one WAL record onto state, returning the updated state and
// a non-empty warning string if the record was unknown, malformed, or
// referenced an entity that no longer exists. Such records are skipped
// rather than aborting recovery: Apply never
// returns an error, only a warning to surface to the operator.
//
// State is passed and returned by value (a slice header) rather than via
// a receiver: this is a pure function so tests can replay a fixed WAL
// against a fixed base state and assert on the result directly.
func Apply(state []graph.SessionSnapshot, rec wal.Record) ([]graph.SessionSnapshot, string) {
	switch rec.Variant {
	case wal.SessionCreated:
		var p wal.SessionCreatedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		// Creations are idempotent by ID: a checkpoint's marker sequence
		// is read before the graph snapshot, so a record landing between
		// the two is both captured in the checkpoint and replayed after
		// it.
		if _, ok := findSession(state, p.SessionID); ok {
			return state, ""
		}
		return append(state, graph.SessionSnapshot{
			ID: p.SessionID, Name: p.Name, CreatedAt: rec.Timestamp,
			Metadata: map[string]string{}, Environment: map[string]string{},
		}), ""

	case wal.SessionDestroyed:
		var p wal.SessionDestroyedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		out := state[:0:0]
		for _, s := range state {
			if s.ID != p.SessionID {
				out = append(out, s)
			}
		}
		return out, ""

	case wal.SessionRenamed:
		var p wal.SessionRenamedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		idx, ok := findSession(state, p.SessionID)
		if !ok {
			return state, missingf(rec, "session", p.SessionID)
		}
		state[idx].Name = p.NewName
		return state, ""

	case wal.WindowCreated:
		var p wal.WindowCreatedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		idx, ok := findSession(state, p.SessionID)
		if !ok {
			return state, missingf(rec, "session", p.SessionID)
		}
		if _, _, ok := findWindow(state, p.WindowID); ok {
			return state, ""
		}
		state[idx].Windows = append(state[idx].Windows, graph.WindowSnapshot{
			ID: p.WindowID, SessionID: p.SessionID, Index: p.Index, Name: p.Name, CreatedAt: rec.Timestamp,
		})
		if p.Index >= state[idx].NextWindowIndex {
			state[idx].NextWindowIndex = p.Index + 1
		}
		return state, ""

	case wal.WindowDestroyed:
		var p wal.WindowDestroyedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, ok := findWindow(state, p.WindowID)
		if !ok {
			return state, missingf(rec, "window", p.WindowID)
		}
		state[si].Windows = append(state[si].Windows[:wi], state[si].Windows[wi+1:]...)
		return state, ""

	case wal.WindowRenamed:
		var p wal.WindowRenamedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, ok := findWindow(state, p.WindowID)
		if !ok {
			return state, missingf(rec, "window", p.WindowID)
		}
		state[si].Windows[wi].Name = p.NewName
		return state, ""

	case wal.PaneCreated:
		var p wal.PaneCreatedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, ok := findWindow(state, p.WindowID)
		if !ok {
			return state, missingf(rec, "window", p.WindowID)
		}
		if _, _, _, ok := findPane(state, p.PaneID); ok {
			return state, ""
		}
		pane := graph.PaneSnapshot{
			ID: p.PaneID, WindowID: p.WindowID, Index: p.Index, Cols: p.Cols, Rows: p.Rows,
			State: graph.NormalState(), CreatedAt: rec.Timestamp, Metadata: map[string]string{},
		}
		if p.Cwd != "" {
			cwd := p.Cwd
			pane.Cwd = &cwd
		}
		state[si].Windows[wi].Panes = append(state[si].Windows[wi].Panes, pane)
		if p.Index >= state[si].Windows[wi].NextPaneIndex {
			state[si].Windows[wi].NextPaneIndex = p.Index + 1
		}
		return state, ""

	case wal.PaneDestroyed:
		var p wal.PaneDestroyedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, pi, ok := findPane(state, p.PaneID)
		if !ok {
			return state, missingf(rec, "pane", p.PaneID)
		}
		state[si].Windows[wi].Panes = append(state[si].Windows[wi].Panes[:pi], state[si].Windows[wi].Panes[pi+1:]...)
		return state, ""

	case wal.PaneResized:
		var p wal.PaneResizedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, pi, ok := findPane(state, p.PaneID)
		if !ok {
			return state, missingf(rec, "pane", p.PaneID)
		}
		state[si].Windows[wi].Panes[pi].Cols = p.Cols
		state[si].Windows[wi].Panes[pi].Rows = p.Rows
		return state, ""

	case wal.PaneStateChanged:
		var p wal.PaneStateChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, pi, ok := findPane(state, p.PaneID)
		if !ok {
			return state, missingf(rec, "pane", p.PaneID)
		}
		var newState graph.PaneState
		if err := json.Unmarshal(p.State, &newState); err != nil {
			return state, warnf(rec, err)
		}
		state[si].Windows[wi].Panes[pi].State = newState
		return state, ""

	case wal.PaneTitleChanged:
		var p wal.PaneTitleChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, pi, ok := findPane(state, p.PaneID)
		if !ok {
			return state, missingf(rec, "pane", p.PaneID)
		}
		title := p.Title
		state[si].Windows[wi].Panes[pi].Title = &title
		return state, ""

	case wal.PaneCwdChanged:
		var p wal.PaneCwdChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, pi, ok := findPane(state, p.PaneID)
		if !ok {
			return state, missingf(rec, "pane", p.PaneID)
		}
		cwd := p.Cwd
		state[si].Windows[wi].Panes[pi].Cwd = &cwd
		return state, ""

	case wal.ActiveWindowChanged:
		var p wal.ActiveWindowChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		idx, ok := findSession(state, p.SessionID)
		if !ok {
			return state, missingf(rec, "session", p.SessionID)
		}
		state[idx].ActiveWindowID = p.WindowID
		return state, ""

	case wal.ActivePaneChanged:
		var p wal.ActivePaneChangedPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		si, wi, ok := findWindow(state, p.WindowID)
		if !ok {
			return state, missingf(rec, "window", p.WindowID)
		}
		state[si].Windows[wi].ActivePaneID = p.PaneID
		return state, ""

	case wal.SessionMetadataSet:
		var p wal.SessionMetadataSetPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		idx, ok := findSession(state, p.SessionID)
		if !ok {
			return state, missingf(rec, "session", p.SessionID)
		}
		if state[idx].Metadata == nil {
			state[idx].Metadata = map[string]string{}
		}
		for k, v := range p.KV {
			state[idx].Metadata[k] = v
		}
		return state, ""

	case wal.SessionEnvironmentSet:
		var p wal.SessionEnvironmentSetPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return state, warnf(rec, err)
		}
		idx, ok := findSession(state, p.SessionID)
		if !ok {
			return state, missingf(rec, "session", p.SessionID)
		}
		if state[idx].Environment == nil {
			state[idx].Environment = map[string]string{}
		}
		for k, v := range p.KV {
			state[idx].Environment[k] = v
		}
		return state, ""

	case wal.PaneOutput, wal.CheckpointMarker:
		// PaneOutput is ephemeral (recovery never depends on
		// scrollback contents); CheckpointMarker is purely informational
		// since ReadAfter already starts strictly after the checkpoint's
		// sequence.
		return state, ""

	default:
		return state, fmt.Sprintf("wal: skipping unknown record variant %q at sequence %d", rec.Variant, rec.Sequence)
	}
}

// ReplayAll folds every record in records onto base in order, collecting
// one warning string per skipped record.
func ReplayAll(base []graph.SessionSnapshot, records []wal.Record, log *slog.Logger) ([]graph.SessionSnapshot, []string) {
	state := base
	var warnings []string
	for _, rec := range records {
		var w string
		state, w = Apply(state, rec)
		if w != "" {
			warnings = append(warnings, w)
			if log != nil {
				log.Warn(w)
			}
		}
	}
	return state, warnings
}

func warnf(rec wal.Record, err error) string {
	return fmt.Sprintf("wal: skipping malformed %s record at sequence %d: %v", rec.Variant, rec.Sequence, err)
}

func missingf(rec wal.Record, kind, id string) string {
	return fmt.Sprintf("wal: skipping %s record at sequence %d: %s %s not found", rec.Variant, rec.Sequence, kind, id)
}

func findSession(state []graph.SessionSnapshot, id string) (int, bool) {
	for i := range state {
		if state[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func findWindow(state []graph.SessionSnapshot, windowID string) (si, wi int, ok bool) {
	for i := range state {
		for j := range state[i].Windows {
			if state[i].Windows[j].ID == windowID {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func findPane(state []graph.SessionSnapshot, paneID string) (si, wi, pi int, ok bool) {
	for i := range state {
		for j := range state[i].Windows {
			for k := range state[i].Windows[j].Panes {
				if state[i].Windows[j].Panes[k].ID == paneID {
					return i, j, k, true
				}
			}
		}
	}
	return 0, 0, 0, false
}
