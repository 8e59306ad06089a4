// Package transport is the IPC layer: a Unix domain socket carrying
// length-prefixed msgpack frames, one long-lived connection per
// client. An accept loop hands each connection to its own goroutine
// pair; the framing helpers below are shared by server and client.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame. Scrollback replay on attach is
// the largest legitimate payload; 16 MiB leaves room for a full
// scrollback ring several times over while keeping a malformed length
// prefix from allocating gigabytes.
const maxFrameSize = 16 << 20

var errFrameTooLarge = errors.New("transport: frame exceeds size limit")

// writeFrame writes one 4-byte big-endian length prefix followed by
// payload.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return errFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame. io.EOF at a frame boundary
// is returned as-is (orderly close); a partial header or body is an
// unexpected-EOF error.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, errFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return payload, nil
}
