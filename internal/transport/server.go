package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ccmux/ccmux/internal/handlers"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/wire"
)

// Server accepts client connections on the daemon's Unix socket and
// runs two goroutines per connection:
// one reading request frames and dispatching them, one draining the
// client's registry outbox back to the socket. Responses are routed
// through the outbox too, so a client's responses and the broadcasts it
// receives share a single FIFO.
type Server struct {
	listener   net.Listener
	socketPath string
	registry   *registry.Registry
	dispatcher *handlers.Dispatcher
	log        *slog.Logger

	nextClient atomic.Uint64
	wg         sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Listen binds the Unix socket at socketPath, replacing any stale
// socket file left by a previous run (the lock-file, not the socket, is
// the liveness signal — recovery.Acquire has already refused to start
// if another daemon is alive).
func Listen(socketPath string, reg *registry.Registry, disp *handlers.Dispatcher, log *slog.Logger) (*Server, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("transport: chmod socket: %w", err)
	}
	return &Server{
		listener:   ln,
		socketPath: socketPath,
		registry:   reg,
		dispatcher: disp,
		log:        log,
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listener's address (useful when tests bind to a
// temp-dir socket).
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed. It returns nil on orderly shutdown.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, closes every live connection, waits for
// the per-connection goroutines to drain, and removes the socket file
// so the next startup's liveness signal is the lock-file alone.
func (s *Server) Shutdown() {
	s.listener.Close()
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrack(conn)

	clientID, clientType, err := s.handshake(conn)
	if err != nil {
		s.warnf("handshake failed: %v", err)
		return
	}

	outbox := s.registry.Register(clientID, clientType)
	defer s.registry.Unregister(clientID)

	// Writer: drains the outbox to the socket. A write error closes the
	// connection, which in turn ends the reader below; Unregister wakes
	// anything blocked in registry.Send.
	writerDone := make(chan struct{})
	connDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case item := <-outbox:
				frame, err := encodeOutboxItem(item)
				if err != nil {
					s.warnf("client %s: encode outbound: %v", clientID, err)
					continue
				}
				if err := writeFrame(conn, frame); err != nil {
					conn.Close()
					return
				}
			case <-connDone:
				return
			}
		}
	}()

	s.readLoop(conn, clientID, clientType)

	close(connDone)
	<-writerDone
}

// handshake reads the mandatory Hello frame and replies with Welcome.
func (s *Server) handshake(conn net.Conn) (string, registry.ClientType, error) {
	payload, err := readFrame(conn)
	if err != nil {
		return "", "", err
	}
	var msg wire.ClientMessage
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return "", "", fmt.Errorf("decode hello: %w", err)
	}
	if msg.Type != wire.TypeHello {
		return "", "", fmt.Errorf("expected Hello, got %s", msg.Type)
	}
	var hello wire.HelloReq
	if err := msg.Decode(&hello); err != nil {
		return "", "", fmt.Errorf("decode hello body: %w", err)
	}

	clientID := fmt.Sprintf("c%d", s.nextClient.Add(1))
	welcome, err := wire.EncodeServer(msg.ID, wire.TypeWelcome, wire.WelcomeResp{ClientID: clientID})
	if err != nil {
		return "", "", err
	}
	raw, err := msgpack.Marshal(welcome)
	if err != nil {
		return "", "", err
	}
	if err := writeFrame(conn, raw); err != nil {
		return "", "", err
	}
	return clientID, registry.ParseClientType(hello.ClientType), nil
}

func (s *Server) readLoop(conn net.Conn, clientID string, clientType registry.ClientType) {
	for {
		payload, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				s.debugf("client %s: read: %v", clientID, err)
			}
			return
		}
		var msg wire.ClientMessage
		if err := msgpack.Unmarshal(payload, &msg); err != nil {
			s.warnf("client %s: malformed frame: %v", clientID, err)
			continue
		}
		resp, followUps := s.dispatcher.Handle(clientID, clientType, msg)
		if !s.registry.Send(clientID, resp) {
			return
		}
		for _, fu := range followUps {
			if !s.registry.Send(clientID, fu) {
				return
			}
		}
	}
}

// encodeOutboxItem flattens whatever the registry delivered into one
// serialized ServerMessage frame: responses arrive pre-built, pushes
// arrive as their payload struct and are wrapped with ID 0.
func encodeOutboxItem(item any) ([]byte, error) {
	switch m := item.(type) {
	case wire.ServerMessage:
		return msgpack.Marshal(m)
	case wire.Pushable:
		sm, err := wire.EncodeServer(0, m.WireType(), m)
		if err != nil {
			return nil, err
		}
		return msgpack.Marshal(sm)
	default:
		return nil, fmt.Errorf("transport: unsupported outbox item %T", item)
	}
}

func (s *Server) warnf(format string, args ...any) {
	if s.log != nil {
		s.log.Warn("transport: " + fmt.Sprintf(format, args...))
	}
}

func (s *Server) debugf(format string, args ...any) {
	if s.log != nil {
		s.log.Debug("transport: " + fmt.Sprintf(format, args...))
	}
}
