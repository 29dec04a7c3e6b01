package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

// ErrNotRunning is wrapped by SendMessage on a connection that is not running
var ErrNotRunning = errors.New("connection is not running")

type connState int

const (
	stateIdle connState = iota
	stateStarting
	stateRunning
	stateStopped
)

// Connection is one framed message stream over TCP. A remote connection
// dials out on Start; an accepted connection is created by a Server. Once
// stopped a connection is never restarted.
type Connection struct {
	id     string
	cfg    Config
	host   string
	port   int
	server *Server

	mu    sync.Mutex
	state connState
	conn  net.Conn
	done  chan struct{}

	writeMu sync.Mutex

	obs observers
}

// NewConnection creates an unstarted remote connection to host:port
func NewConnection(host string, port int, cfg Config) *Connection {
	return &Connection{
		id:   uuid.NewString(),
		cfg:  cfg,
		host: host,
		port: port,
	}
}

func newAcceptedConnection(conn net.Conn, s *Server) *Connection {
	c := &Connection{
		id:     uuid.NewString(),
		cfg:    s.cfg,
		server: s,
		conn:   conn,
	}
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.host = addr.IP.String()
		c.port = addr.Port
	}
	return c
}

// ID returns a unique identifier for this connection
func (c *Connection) ID() string { return c.id }

// IsRemote reports whether the connection was created to dial out
func (c *Connection) IsRemote() bool { return c.server == nil }

// Server returns the owning server of an accepted connection, nil otherwise
func (c *Connection) Server() *Server { return c.server }

// IsRunning reports whether the receive loop is active
func (c *Connection) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRunning
}

// RemoteAddr returns host:port of the peer
func (c *Connection) RemoteAddr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// LocalAddr returns the local socket address, or "" before Start
func (c *Connection) LocalAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.LocalAddr().String()
}

// OnMessage registers a handler for application messages
func (c *Connection) OnMessage(h MessageHandler) { c.obs.addMessage(h) }

// OnInternalMessage registers a handler for internal messages
func (c *Connection) OnInternalMessage(h MessageHandler) { c.obs.addInternal(h) }

// OnConnection registers a lifecycle handler. Only remote connections raise
// events here; accepted connections are reported by their Server.
func (c *Connection) OnConnection(h ConnectionHandler) { c.obs.addConnection(h) }

func (c *Connection) role() string {
	if c.IsRemote() {
		return "remote"
	}
	return "accepted"
}

// Start dials the peer (remote connections only) and begins the receive
// loop. Starting a running connection is a no-op; starting a stopped one is
// an error.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateRunning, stateStarting:
		c.mu.Unlock()
		return nil
	case stateStopped:
		c.mu.Unlock()
		return wire.ConfigurationError("Start", c.RemoteAddr(), "connection was stopped and cannot be restarted")
	}
	c.state = stateStarting
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", c.RemoteAddr())
		if err != nil {
			c.mu.Lock()
			c.state = stateIdle
			c.mu.Unlock()
			return wire.TransportError("Start", c.RemoteAddr(), err)
		}
	}

	c.mu.Lock()
	if c.state != stateStarting {
		c.mu.Unlock()
		logging.LogSuppressed("close abandoned dial", conn.Close())
		return wire.ConfigurationError("Start", c.RemoteAddr(), "connection stopped while starting")
	}
	c.conn = conn
	c.state = stateRunning
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	metrics.ConnectionStarted(c.role())
	logging.LogConnection(c.id, c.RemoteAddr(), "connection_started")

	if c.IsRemote() {
		c.obs.emitConnection(c, Connected)
	}

	go c.receiveLoop(conn, done)
	return nil
}

// Stop closes the socket and waits, up to Config.StopTimeout, for the
// receive loop to end. It is safe to call more than once and on a
// connection that never started. Close failures are logged, never returned.
//
// Called from one of the connection's own handlers with synchronous
// dispatch, Stop cannot see the receive loop end until that handler
// returns, so it gives up waiting after the full StopTimeout. Use
// AsyncDispatch or `go c.Stop()` to stop from inside a handler.
func (c *Connection) Stop() {
	c.stop(true)
}

// stop returns false if the connection was not running
func (c *Connection) stop(wait bool) bool {
	c.mu.Lock()
	switch c.state {
	case stateStarting:
		c.state = stateStopped
		c.mu.Unlock()
		return false
	case stateIdle:
		// an accepted socket that never started is closed here; Start refuses it
		conn := c.conn
		if conn != nil {
			c.state = stateStopped
		}
		c.mu.Unlock()
		if conn != nil {
			logging.LogSuppressed("close unstarted connection", conn.Close())
		}
		return false
	}
	if c.state != stateRunning {
		c.mu.Unlock()
		return false
	}
	c.state = stateStopped
	conn, done := c.conn, c.done
	c.mu.Unlock()

	if tc, ok := conn.(*net.TCPConn); ok {
		logging.LogSuppressed("close read side", tc.CloseRead())
		logging.LogSuppressed("close write side", tc.CloseWrite())
	}
	logging.LogSuppressed("close connection", conn.Close())

	if wait {
		select {
		case <-done:
		case <-time.After(c.cfg.StopTimeout):
			logging.Debug("Receive loop still busy after stop",
				zap.String("conn_id", c.id),
				zap.Duration("waited", c.cfg.StopTimeout),
			)
		}
	}

	metrics.ConnectionStopped(c.role())
	logging.LogConnection(c.id, c.RemoteAddr(), "connection_stopped")

	if c.IsRemote() {
		c.obs.emitConnection(c, Disconnected)
	}
	return true
}

// fail ends the connection after an I/O error on the send or receive path.
// Accepted connections are also dropped by their server.
func (c *Connection) fail(op string, err error) {
	if !c.stop(false) {
		return
	}
	if errors.Is(err, io.EOF) {
		logging.Info("Connection closed by peer", zap.String("remote_addr", c.RemoteAddr()))
	} else {
		logging.Info("Connection closed on error",
			zap.String("remote_addr", c.RemoteAddr()),
			zap.String("op", op),
			zap.Error(err),
		)
	}
	if c.server != nil {
		c.server.forget(c)
	}
}

// SendMessage frames msg and writes it. Writers are serialized, so frames
// from concurrent senders never interleave. A write failure stops the
// connection.
func (c *Connection) SendMessage(msg *wire.Message) error {
	if msg == nil {
		return wire.EncodingError("SendMessage", "", "message is nil")
	}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	running := c.state == stateRunning
	c.mu.Unlock()
	if !running {
		return wire.TransportError("SendMessage", msg.Name(), ErrNotRunning)
	}

	c.writeMu.Lock()
	if c.cfg.WriteTimeout > 0 {
		logging.LogSuppressed("set write deadline", conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)))
	}
	_, err = conn.Write(data)
	c.writeMu.Unlock()

	if err != nil {
		metrics.SendFailed()
		c.fail("send", err)
		return wire.TransportError("SendMessage", msg.Name(), err)
	}

	metrics.MessageSent(msg.IsInternal(), len(data))
	logging.LogMessage(c.RemoteAddr(), "sent", msg.Name(), msg.IsInternal(), len(data))
	return nil
}

// countingReader tracks how many bytes the last frame took
type countingReader struct {
	r io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += n
	return n, err
}

func (c *Connection) receiveLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	cr := &countingReader{r: bufio.NewReader(conn)}
	for {
		cr.n = 0
		msg, err := wire.ReadMessage(cr)
		if err != nil {
			c.mu.Lock()
			stopping := c.state != stateRunning
			c.mu.Unlock()
			if !stopping {
				c.fail("receive", err)
			}
			return
		}

		metrics.MessageReceived(msg.IsInternal(), cr.n)
		logging.LogMessage(c.RemoteAddr(), "received", msg.Name(), msg.IsInternal(), cr.n)

		if c.cfg.AsyncDispatch {
			go c.obs.emitMessage(c, msg)
		} else {
			c.obs.emitMessage(c, msg)
		}
	}
}

func (c *Connection) String() string {
	return c.role() + " connection " + c.RemoteAddr()
}
