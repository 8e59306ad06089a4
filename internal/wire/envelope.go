// Package wire is the self-describing binary encoding of the
// ClientMessage/ServerMessage tagged unions. Go has no native tagged
// union, so a small envelope carries a Type string plus a raw
// per-variant payload, encoded with
// github.com/vmihailenco/msgpack/v5.
//
// Wire-format versioning: new message Types
// are purely additive. A handler that doesn't recognize a ClientMessage
// Type returns InvalidOperation; a client that doesn't recognize a
// ServerMessage Type should ignore it with a warning rather than fail.
package wire

import "github.com/vmihailenco/msgpack/v5"

// ClientMessage is one request frame sent by a connected client.
// ID is caller-assigned and echoed back on the matching ServerMessage so
// a client with multiple in-flight requests can correlate responses.
type ClientMessage struct {
	ID   uint64             `msgpack:"id"`
	Type string             `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body,omitempty"`
}

// ServerMessage is one response or push frame sent to a client. ID is 0
// for unsolicited broadcasts (PaneCreated, Output, ...); otherwise it
// echoes the ClientMessage.ID that produced it.
type ServerMessage struct {
	ID   uint64             `msgpack:"id"`
	Type string             `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body,omitempty"`
}

// EncodeClient builds a ClientMessage frame around body, ready for
// msgpack.Marshal by the transport layer.
func EncodeClient(id uint64, typ string, body any) (ClientMessage, error) {
	raw, err := msgpack.Marshal(body)
	if err != nil {
		return ClientMessage{}, err
	}
	return ClientMessage{ID: id, Type: typ, Body: raw}, nil
}

// EncodeServer builds a ServerMessage frame around body.
func EncodeServer(id uint64, typ string, body any) (ServerMessage, error) {
	raw, err := msgpack.Marshal(body)
	if err != nil {
		return ServerMessage{}, err
	}
	return ServerMessage{ID: id, Type: typ, Body: raw}, nil
}

// Decode unmarshals m.Body into out (a pointer to the concrete payload
// struct matching m.Type).
func (m ClientMessage) Decode(out any) error {
	return msgpack.Unmarshal(m.Body, out)
}

// Decode unmarshals m.Body into out.
func (m ServerMessage) Decode(out any) error {
	return msgpack.Unmarshal(m.Body, out)
}
