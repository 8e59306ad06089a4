// Package sideband implements the in-band OSC command protocol: a
// parser that strips and extracts ccmux-prefixed OSC frames from raw
// PTY output, and an executor that dispatches the extracted commands
// against the object graph, client registry, and PTY layer.
//
// The parser is a small stateful struct with a Feed method — consume
// bytes, return what's ready, retain the rest — and the executor lives
// in executor.go, with the spawn command in spawn.go.
package sideband

// Command is one parsed sideband frame, ready for the executor.
type Command struct {
	Name  string
	Attrs map[string]string
	Body  []byte
}

// Known command names.
const (
	CmdSpawn        = "spawn"
	CmdFocus        = "focus"
	CmdInput        = "input"
	CmdScroll       = "scroll"
	CmdNotify       = "notify"
	CmdMail         = "mail"
	CmdControl      = "control"
	CmdCapabilities = "capabilities"
)

func isKnownCommand(name string) bool {
	switch name {
	case CmdSpawn, CmdFocus, CmdInput, CmdScroll, CmdNotify, CmdMail, CmdControl, CmdCapabilities:
		return true
	default:
		return false
	}
}

// commandTakesBody reports whether a command may carry a content body
// framed by a paired closing tag (the Body column of the // command table). All other commands are complete at their terminator.
func commandTakesBody(name string) bool {
	switch name {
	case CmdInput, CmdNotify, CmdCapabilities:
		return true
	default:
		return false
	}
}
