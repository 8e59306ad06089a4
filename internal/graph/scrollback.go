package graph

// Scrollback is a bounded byte ring: once full, the oldest bytes are
// discarded. Recovery never depends on its contents; it exists purely
// for AttachSession replay and ReadPane.
//
// The configured capacity counts newline-delimited lines, but the ring
// itself is byte-oriented since line boundaries are a display concern,
// not a storage one.
type Scrollback struct {
	buf  []byte
	head int
	size int
}

// NewScrollback creates a ring sized to hold approximately lines lines
// at a ~200-byte-per-line budget.
func NewScrollback(lines int) *Scrollback {
	if lines <= 0 {
		lines = 1000
	}
	return &Scrollback{buf: make([]byte, lines*200)}
}

// Write appends chunk, discarding the oldest bytes first once full.
func (r *Scrollback) Write(chunk []byte) {
	if len(r.buf) == 0 || len(chunk) == 0 {
		return
	}
	if len(chunk) >= len(r.buf) {
		copy(r.buf, chunk[len(chunk)-len(r.buf):])
		r.head = 0
		r.size = len(r.buf)
		return
	}
	n := copy(r.buf[r.head:], chunk)
	if n < len(chunk) {
		copy(r.buf, chunk[n:])
		r.head = len(chunk) - n
	} else {
		r.head = (r.head + n) % len(r.buf)
	}
	r.size += len(chunk)
	if r.size > len(r.buf) {
		r.size = len(r.buf)
	}
}

// Snapshot returns the current contents in write order (oldest first).
func (r *Scrollback) Snapshot() []byte {
	if r.size == 0 {
		return nil
	}
	out := make([]byte, r.size)
	if r.size < len(r.buf) {
		copy(out, r.buf[:r.size])
		return out
	}
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}

// Len reports the number of bytes currently held.
func (r *Scrollback) Len() int { return r.size }

// Cap reports the configured byte capacity.
func (r *Scrollback) Cap() int { return len(r.buf) }

// restoreScrollback rebuilds a ring of the given byte capacity pre-seeded
// with contents (oldest first), used when a checkpoint carries scrollback
// bytes.
func restoreScrollback(byteCap int, contents []byte) *Scrollback {
	if byteCap <= 0 {
		byteCap = 1000 * 200
	}
	r := &Scrollback{buf: make([]byte, byteCap)}
	r.Write(contents)
	return r
}
