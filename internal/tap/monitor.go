package tap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/pkg/pubsub"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512

	defaultPath         = "/ws"
	defaultClientBuffer = 64
)

// Config holds the monitor settings
type Config struct {
	// Addr is the HTTP listen address used by Start
	Addr string

	// Path is the WebSocket endpoint
	Path string

	// ClientBuffer is the number of events queued per client before new
	// events are dropped for it
	ClientBuffer int
}

// DefaultConfig returns a monitor listening on localhost:8080/ws
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8080",
		Path:         defaultPath,
		ClientBuffer: defaultClientBuffer,
	}
}

// Monitor streams messages to WebSocket clients as JSON events
type Monitor struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// NewMonitor creates a monitor. Zero fields of cfg take their defaults.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = defaultClientBuffer
	}
	return &Monitor{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// The tap is a local debugging aid
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP routes: the WebSocket endpoint and /health
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(m.cfg.Path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start binds cfg.Addr and serves in the background
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return fmt.Errorf("tap already running on %s", m.cfg.Addr)
	}

	listener, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Tap server stopped", zap.Error(err))
		}
	}(m.server)

	logging.Info("Tap listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", m.cfg.Path),
	)
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (m *Monitor) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.cfg.Addr
}

// Stop shuts the HTTP server down and disconnects every client
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	srv := m.server
	m.server = nil
	m.listener = nil
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	// Hijacked connections are not closed by Shutdown
	deadline := time.Now().Add(time.Second)
	for _, c := range clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "tap stopped")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			logging.LogSuppressed("tap close frame", werr)
		}
		c.close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// Clients returns the number of attached clients
func (m *Monitor) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// ServeHTTP upgrades the request and attaches the client
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Tap upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, m.cfg.ClientBuffer),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	n := len(m.clients)
	m.mu.Unlock()

	metrics.TapClients(n)
	logging.LogConnection(c.id, r.RemoteAddr, "tap_attached")

	m.wg.Add(2)
	go m.writePump(c)
	go m.readPump(c)
}

func (m *Monitor) remove(c *client) {
	c.close()

	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	n := len(m.clients)
	m.mu.Unlock()

	if ok {
		metrics.TapClients(n)
		logging.LogConnection(c.id, c.conn.RemoteAddr().String(), "tap_detached")
	}
}

// readPump drains control frames so pongs and close frames are processed
func (m *Monitor) readPump(c *client) {
	defer m.wg.Done()
	defer m.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Tap client read failed", zap.String("id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (m *Monitor) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.remove(c)
		m.wg.Done()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug("Tap client write failed", zap.String("id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Publish queues msg for every attached client and returns how many
// accepted it. A client whose queue is full misses the event.
func (m *Monitor) Publish(msg *wire.Message) int {
	data, err := json.Marshal(EventOf(msg))
	if err != nil {
		logging.Error("Failed to encode tap event",
			zap.String("message", msg.Name()),
			zap.Error(err),
		)
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	queued := 0
	for c := range m.clients {
		select {
		case c.send <- data:
			queued++
		default:
			logging.Debug("Tap client queue full, event dropped",
				zap.String("id", c.id),
				zap.String("message", msg.Name()),
			)
		}
	}
	return queued
}

// WatchConnection publishes every message c receives
func (m *Monitor) WatchConnection(c *tcp.Connection) {
	h := func(_ *tcp.Connection, msg *wire.Message) { m.Publish(msg) }
	c.OnMessage(h)
	c.OnInternalMessage(h)
}

// WatchSubscription publishes the messages s hands to its general handlers.
// Messages claimed by a per-template handler are not seen.
func (m *Monitor) WatchSubscription(s *pubsub.Subscription) {
	h := func(_ *pubsub.Subscription, msg *wire.Message) { m.Publish(msg) }
	s.OnMessage(h)
	s.OnInternalMessage(h)
}
