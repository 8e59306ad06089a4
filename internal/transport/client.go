package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ccmux/ccmux/internal/wire"
)

// Client is the connecting side of the wire protocol, used by
// cmd/ccmuxctl and by transport's own tests. It multiplexes concurrent
// requests over the single connection by ClientMessage.ID and surfaces
// unsolicited pushes (ID 0) on a channel.
type Client struct {
	conn   net.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[uint64]chan wire.ServerMessage
	closed   bool
	clientID string

	pushes chan wire.ServerMessage
}

// ErrClosed is returned by Request after the connection has been torn
// down.
var ErrClosed = errors.New("transport: client closed")

// Dial connects to the daemon socket and performs the Hello/Welcome
// handshake, declaring clientType ("tui", "mcp", or "other").
func Dial(socketPath, clientType string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", socketPath, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan wire.ServerMessage),
		pushes:  make(chan wire.ServerMessage, 64),
	}

	hello, err := wire.EncodeClient(c.nextID.Add(1), wire.TypeHello, wire.HelloReq{ClientType: clientType})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.writeMessage(hello); err != nil {
		conn.Close()
		return nil, err
	}
	payload, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: read welcome: %w", err)
	}
	var sm wire.ServerMessage
	if err := msgpack.Unmarshal(payload, &sm); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: decode welcome: %w", err)
	}
	if sm.Type != wire.TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("transport: expected Welcome, got %s", sm.Type)
	}
	var welcome wire.WelcomeResp
	if err := sm.Decode(&welcome); err != nil {
		conn.Close()
		return nil, err
	}
	c.clientID = welcome.ClientID

	go c.readLoop()
	return c, nil
}

// ClientID reports the daemon-assigned identifier from the handshake.
func (c *Client) ClientID() string { return c.clientID }

// Pushes returns the channel carrying unsolicited server messages
// (Output, PaneCreated, Notification, ...). The channel closes when the
// connection does. A reader that falls behind loses the oldest pushes.
func (c *Client) Pushes() <-chan wire.ServerMessage { return c.pushes }

// Request sends one request and blocks until its response arrives or
// timeout elapses (0 means wait indefinitely).
func (c *Client) Request(typ string, body any, timeout time.Duration) (wire.ServerMessage, error) {
	id := c.nextID.Add(1)
	msg, err := wire.EncodeClient(id, typ, body)
	if err != nil {
		return wire.ServerMessage{}, err
	}

	ch := make(chan wire.ServerMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.ServerMessage{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeMessage(msg); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return wire.ServerMessage{}, err
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return wire.ServerMessage{}, ErrClosed
		}
		return resp, nil
	case <-timer:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return wire.ServerMessage{}, fmt.Errorf("transport: request %s timed out", typ)
	}
}

// Close tears down the connection; pending Requests fail with ErrClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) writeMessage(msg wire.ClientMessage) error {
	raw, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, raw)
}

func (c *Client) readLoop() {
	defer c.teardown()
	for {
		payload, err := readFrame(c.conn)
		if err != nil {
			return
		}
		var sm wire.ServerMessage
		if err := msgpack.Unmarshal(payload, &sm); err != nil {
			continue
		}
		if sm.ID == 0 {
			select {
			case c.pushes <- sm:
			default:
				// Slow consumer: drop oldest so live output keeps flowing.
				select {
				case <-c.pushes:
				default:
				}
				select {
				case c.pushes <- sm:
				default:
				}
			}
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[sm.ID]
		if ok {
			delete(c.pending, sm.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- sm
		}
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(c.pushes)
}
