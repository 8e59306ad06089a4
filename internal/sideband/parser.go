package sideband

import (
	"bytes"
	"log/slog"
)

const (
	esc = 0x1b
	bel = 0x07
)

// openPrefix marks the start of every ccmux OSC frame, opening or
// closing; a closing frame additionally has '/' immediately after it.
var openPrefix = []byte{esc, ']'}
var ccmuxTag = []byte("ccmux:")

// Parser extracts ccmux sideband commands from a stream of raw PTY
// bytes, one pane's worth at a time. It is not safe for concurrent
// use; each pane-poller task owns its own instance.
type Parser struct {
	buf []byte
	log *slog.Logger
}

// NewParser creates a parser. log may be nil.
func NewParser(log *slog.Logger) *Parser {
	return &Parser{log: log}
}

// Feed consumes chunk (the latest bytes read from a pane's PTY) and
// returns the bytes safe to display (with every recognized sideband
// frame stripped out) plus any commands extracted. An incomplete
// trailing frame is retained internally and completed on a future Feed
// call.
func (p *Parser) Feed(chunk []byte) ([]byte, []Command) {
	data := chunk
	if len(p.buf) > 0 {
		data = append(append([]byte(nil), p.buf...), chunk...)
		p.buf = nil
	}

	var display []byte
	var cmds []Command
	i := 0
	for {
		frameStart := indexOpenFrame(data, i)
		if frameStart < 0 {
			end := len(data)
			// A trailing lone ESC could be the first byte of an opening
			// frame split across reads; hold it back.
			if end > i && data[end-1] == esc {
				end--
				p.buf = []byte{esc}
			}
			display = append(display, data[i:end]...)
			break
		}
		display = append(display, data[i:frameStart]...)

		headerStart := frameStart + len(openPrefix)
		remaining := data[headerStart:]
		if !bytes.HasPrefix(remaining, ccmuxTag) {
			if len(remaining) < len(ccmuxTag) && bytes.HasPrefix(ccmuxTag, remaining) {
				// Could still become a ccmux frame once more bytes arrive.
				p.buf = append([]byte(nil), data[frameStart:]...)
				return display, cmds
			}
			// Not actually a ccmux frame (some other OSC sequence sharing
			// the ESC ] prefix); pass the two bytes through untouched and
			// keep scanning right after them.
			display = append(display, data[frameStart:headerStart]...)
			i = headerStart
			continue
		}
		headerStart += len(ccmuxTag)

		if headerStart >= len(data) {
			p.buf = append([]byte(nil), data[frameStart:]...)
			return display, cmds
		}
		if data[headerStart] == '/' {
			// A closing tag with no open frame of ours pending: stray,
			// drop silently and move on.
			end, ok := skipToTerminator(data, headerStart)
			if !ok {
				p.buf = append([]byte(nil), data[frameStart:]...)
				return display, cmds
			}
			i = end
			continue
		}

		headerEnd, afterTerm, ok := findTerminator(data, headerStart)
		if !ok {
			p.buf = append([]byte(nil), data[frameStart:]...)
			return display, cmds
		}
		header := data[headerStart:headerEnd]
		name, attrs := parseHeader(header)

		if name == "" || !isKnownCommand(name) {
			if p.log != nil {
				p.log.Warn("sideband: dropping malformed or unknown frame", "name", name)
			}
			i = afterTerm
			continue
		}

		// Bodyless commands are complete at their terminator; only the
		// body-bearing ones go looking for a closing tag (and may need to
		// buffer until it arrives).
		if !commandTakesBody(name) {
			cmds = append(cmds, Command{Name: name, Attrs: attrs})
			i = afterTerm
			continue
		}

		closeAt, closeAfter, hasClose, incomplete := findClosingTag(data, afterTerm, name)
		if incomplete {
			p.buf = append([]byte(nil), data[frameStart:]...)
			return display, cmds
		}
		if hasClose {
			body := append([]byte(nil), data[afterTerm:closeAt]...)
			cmds = append(cmds, Command{Name: name, Attrs: attrs, Body: body})
			i = closeAfter
		} else {
			cmds = append(cmds, Command{Name: name, Attrs: attrs})
			i = afterTerm
		}
	}
	return display, cmds
}

func indexOpenFrame(data []byte, from int) int {
	for i := from; i+1 < len(data); i++ {
		if data[i] == esc && data[i+1] == ']' {
			return i
		}
	}
	return -1
}

// findTerminator scans from start for BEL (0x07) or ST (ESC \\),
// returning the header's end offset (exclusive) and the offset just
// after the terminator bytes.
func findTerminator(data []byte, start int) (headerEnd, afterTerm int, ok bool) {
	for i := start; i < len(data); i++ {
		switch data[i] {
		case bel:
			return i, i + 1, true
		case esc:
			if i+1 < len(data) && data[i+1] == '\\' {
				return i, i + 2, true
			}
		}
	}
	return 0, 0, false
}

func skipToTerminator(data []byte, start int) (afterTerm int, ok bool) {
	_, after, ok := findTerminator(data, start)
	return after, ok
}

// findClosingTag searches data[from:] for a closing tag "ESC ]
// ccmux:/<name> <term>" matching name. If an unrelated genuine opening
// frame is encountered first, the command is treated as self-closing
// (hasClose=false, incomplete=false). If neither a matching close nor an
// unrelated open frame can be found because the data simply runs out,
// incomplete is true: the caller should buffer from the original open
// frame and wait for more bytes.
func findClosingTag(data []byte, from int, name string) (closeAt, closeAfter int, hasClose, incomplete bool) {
	pos := from
	for {
		frameStart := indexOpenFrame(data, pos)
		if frameStart < 0 {
			return 0, 0, false, true
		}
		headerStart := frameStart + len(openPrefix)
		if !bytes.HasPrefix(data[headerStart:], ccmuxTag) {
			pos = headerStart
			continue
		}
		headerStart += len(ccmuxTag)
		if headerStart >= len(data) {
			return 0, 0, false, true
		}
		if data[headerStart] != '/' {
			// A genuine new open frame: the pending command is self-closing.
			return 0, 0, false, false
		}
		tagNameStart := headerStart + 1
		tagNameEnd, afterTerm, ok := findTerminator(data, tagNameStart)
		if !ok {
			return 0, 0, false, true
		}
		tagName := string(data[tagNameStart:tagNameEnd])
		if tagName == name {
			return frameStart, afterTerm, true, false
		}
		// A close tag for some other command: ignore and keep scanning
		// (nested frames of different commands are not
		// supported; the outer frame wins).
		pos = afterTerm
	}
}

// parseHeader splits a frame header ("<cmd> key=\"value\" ...") into the
// command name and its attribute map.
func parseHeader(header []byte) (name string, attrs map[string]string) {
	fields := tokenizeHeader(header)
	if len(fields) == 0 {
		return "", nil
	}
	name = fields[0]
	if len(fields) == 1 {
		return name, nil
	}
	attrs = make(map[string]string, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, ok := splitAttr(f)
		if ok {
			attrs[k] = v
		}
	}
	return name, attrs
}

// tokenizeHeader splits header on whitespace, but keeps quoted attribute
// values (key="a value with spaces") intact as one token.
func tokenizeHeader(header []byte) []string {
	var tokens []string
	i := 0
	for i < len(header) {
		for i < len(header) && isSpace(header[i]) {
			i++
		}
		if i >= len(header) {
			break
		}
		start := i
		var quote byte
		for i < len(header) {
			c := header[i]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
				i++
				continue
			}
			if c == '"' || c == '\'' {
				quote = c
				i++
				continue
			}
			if isSpace(c) {
				break
			}
			i++
		}
		tokens = append(tokens, string(header[start:i]))
	}
	return tokens
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func splitAttr(field string) (key, value string, ok bool) {
	eq := indexByte(field, '=')
	if eq < 0 {
		return "", "", false
	}
	key = field[:eq]
	raw := field[eq+1:]
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	return key, raw, true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
