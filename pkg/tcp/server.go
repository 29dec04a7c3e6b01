package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/netutil"
	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server accepts connections and keeps the set of active ones. Accepted
// connections are owned by the server and removed from it when they fail.
type Server struct {
	name     string
	cfg      Config
	listener net.Listener
	port     int

	mu        sync.Mutex
	conns     map[string]*Connection
	running   bool
	stopped   bool
	done      chan struct{}
	responder *discovery.Responder

	obs observers
}

// NewServer binds the listening socket. With cfg.Port zero the ports
// cfg.BasePort, +PortStep, ... are tried until one binds. Two servers
// created concurrently on one host may race for a port; callers retry.
func NewServer(name string, cfg Config) (*Server, error) {
	if name == "" {
		return nil, wire.ConfigurationError("NewServer", "", "server name is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for _, port := range cfg.candidatePorts() {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp4", addr)
		if err != nil {
			lastErr = err
			logging.Debug("Port unavailable", zap.String("addr", addr), zap.Error(err))
			continue
		}

		s := &Server{
			name:     name,
			cfg:      cfg,
			listener: ln,
			port:     ln.Addr().(*net.TCPAddr).Port,
			conns:    make(map[string]*Connection),
		}
		logging.Info("Server bound",
			zap.String("name", name),
			zap.String("addr", ln.Addr().String()),
		)
		return s, nil
	}

	msg := "no free port"
	if lastErr != nil {
		msg = fmt.Sprintf("no free port: %v", lastErr)
	}
	return nil, wire.ConfigurationError("NewServer", name, msg)
}

// Name returns the server name announced in discovery
func (s *Server) Name() string { return s.name }

// Port returns the bound port
func (s *Server) Port() int { return s.port }

// Addr returns the listening address
func (s *Server) Addr() string { return s.listener.Addr().String() }

// IsRunning reports whether the accept loop is active
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsDiscoverable reports whether the server answers discovery lookups
func (s *Server) IsDiscoverable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responder != nil
}

// Connections returns a snapshot of the active connections
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

// OnConnection registers a handler for accepted connections joining
// (Connected) and leaving (Disconnected) the active set. Connected is raised
// before the connection's receive loop starts, so message handlers attached
// there see every frame.
func (s *Server) OnConnection(h ConnectionHandler) { s.obs.addConnection(h) }

// Start begins accepting connections. A stopped server cannot be restarted.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.stopped {
		s.mu.Unlock()
		return wire.ConfigurationError("Start", s.name, "server was stopped and cannot be restarted")
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.acceptLoop(done)

	logging.Info("Server listening for connections",
		zap.String("name", s.name),
		zap.String("addr", s.Addr()),
	)

	if s.cfg.Discoverable {
		if err := s.SetDiscoverable(true); err != nil {
			logging.Warn("Server not discoverable", zap.String("name", s.name), zap.Error(err))
		}
	}
	return nil
}

func (s *Server) acceptLoop(done chan struct{}) {
	defer close(done)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.IsRunning() {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c := newAcceptedConnection(conn, s)

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			logging.LogSuppressed("close late connection", conn.Close())
			return
		}
		s.conns[c.id] = c
		s.mu.Unlock()

		logging.LogConnection(c.id, c.RemoteAddr(), "connection_accepted")
		s.obs.emitConnection(c, Connected)

		// a Connected handler may have stopped the server or removed c
		s.mu.Lock()
		_, tracked := s.conns[c.id]
		s.mu.Unlock()
		if !tracked {
			c.Stop()
			logging.LogConnection(c.id, c.RemoteAddr(), "connection_dropped_before_start")
			continue
		}

		if err := c.Start(context.Background()); err != nil {
			if s.IsRunning() {
				logging.Error("Failed to start accepted connection", zap.String("conn_id", c.id), zap.Error(err))
			}
			s.forget(c)
		}
	}
}

// BroadcastMessage sends msg to every active connection not in exclude and
// returns how many sends succeeded. A failing connection is dropped through
// its own failure path; the broadcast carries on.
func (s *Server) BroadcastMessage(msg *wire.Message, exclude ...*Connection) int {
	skip := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		if c != nil {
			skip[c.id] = true
		}
	}

	sent := 0
	for _, c := range s.Connections() {
		if skip[c.id] {
			continue
		}
		if err := c.SendMessage(msg); err != nil {
			logging.Debug("Broadcast send failed", zap.String("conn_id", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// RemoveConnection stops c and drops it from the active set, raising
// Disconnected if it was a member
func (s *Server) RemoveConnection(c *Connection) {
	c.Stop()
	s.forget(c)
}

func (s *Server) forget(c *Connection) {
	s.mu.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	s.mu.Unlock()

	if ok {
		logging.LogConnection(c.id, c.RemoteAddr(), "connection_removed")
		s.obs.emitConnection(c, Disconnected)
	}
}

// SetDiscoverable starts or stops answering discovery lookups for this
// server's name and type
func (s *Server) SetDiscoverable(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !on {
		if s.responder != nil {
			logging.LogSuppressed("close responder", s.responder.Close())
			s.responder = nil
		}
		return nil
	}
	if s.responder != nil {
		return nil
	}

	ip := s.cfg.Advertise
	if ip == "" {
		ip = netutil.LocalIPv4().String()
	}
	r, err := discovery.NewResponder(s.cfg.Discovery, discovery.Endpoint{
		Type: s.cfg.discoveryType(),
		Name: s.name,
		IP:   ip,
		Port: s.port,
	})
	if err != nil {
		return fmt.Errorf("failed to start discovery responder: %w", err)
	}
	s.responder = r
	return nil
}

// Stop stops every active connection, discovery participation and the
// listener, then waits up to Config.StopTimeout for the accept loop.
// Disconnected is raised for each connection dropped.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.stopped = true
		s.mu.Unlock()
		logging.LogSuppressed("close listener", s.listener.Close())
		return
	}
	s.running = false
	s.stopped = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*Connection)
	responder := s.responder
	s.responder = nil
	done := s.done
	s.mu.Unlock()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			c.Stop()
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range conns {
		s.obs.emitConnection(c, Disconnected)
	}

	if responder != nil {
		logging.LogSuppressed("close responder", responder.Close())
	}
	logging.LogSuppressed("close listener", s.listener.Close())

	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		logging.Debug("Accept loop still busy after stop", zap.String("name", s.name))
	}

	logging.Info("Server stopped", zap.String("name", s.name), zap.Int("connections", len(conns)))
}
