package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/netutil"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

// Sender writes framed messages to the multicast group. Frames larger than
// MaxDatagramSize are split across consecutive datagrams.
type Sender struct {
	conn    *net.UDPConn
	maxSize int
	mu      sync.Mutex
}

// NewSender opens a UDP socket connected to the group with the configured
// TTL, loopback and interface
func NewSender(cfg Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp4", nil, cfg.GroupAddr())
	if err != nil {
		return nil, wire.TransportError("NewSender", cfg.Group, err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(cfg.TTL); err != nil {
		_ = conn.Close()
		return nil, wire.TransportError("NewSender", "ttl", err)
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		_ = conn.Close()
		return nil, wire.TransportError("NewSender", "loopback", err)
	}
	iface, err := netutil.ResolveInterface(cfg.Interface)
	if err != nil {
		_ = conn.Close()
		return nil, wire.ConfigurationError("NewSender", "interface", err.Error())
	}
	if iface != nil {
		if err := pc.SetMulticastInterface(iface); err != nil {
			_ = conn.Close()
			return nil, wire.TransportError("NewSender", iface.Name, err)
		}
	}

	return &Sender{conn: conn, maxSize: cfg.MaxDatagramSize}, nil
}

// Send frames msg and writes it to the group
func (s *Sender) Send(msg *wire.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return wire.TransportError("Send", msg.Name(), net.ErrClosed)
	}
	for off := 0; off < len(data); off += s.maxSize {
		end := min(off+s.maxSize, len(data))
		if _, err := s.conn.Write(data[off:end]); err != nil {
			return wire.TransportError("Send", msg.Name(), err)
		}
	}
	logging.LogRawBytes("Multicast datagram sent", data)
	return nil
}

// Close releases the socket
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Receiver joins the multicast group and delivers every reassembled message
// to its handler from a single read loop
type Receiver struct {
	conn       *net.UDPConn
	maxSize    int
	maxPending int
	assemblers map[string]*Reassembler
	done       chan struct{}
	closeOnce  sync.Once
}

// NewReceiver binds the group port on all interfaces with address reuse and
// joins the group
func NewReceiver(cfg Config) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := netutil.ListenReusableUDP(context.Background(), cfg.Port)
	if err != nil {
		return nil, wire.TransportError("NewReceiver", cfg.Group, err)
	}

	if err := joinGroup(ipv4.NewPacketConn(conn), cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Receiver{
		conn:       conn,
		maxSize:    cfg.MaxDatagramSize,
		maxPending: cfg.maxPending(),
		assemblers: make(map[string]*Reassembler),
		done:       make(chan struct{}),
	}, nil
}

// joinGroup joins on the configured interface, or on the system default.
// When the default join fails every multicast interface is tried.
func joinGroup(pc *ipv4.PacketConn, cfg Config) error {
	group := &net.UDPAddr{IP: net.ParseIP(cfg.Group)}

	iface, err := netutil.ResolveInterface(cfg.Interface)
	if err != nil {
		return wire.ConfigurationError("NewReceiver", "interface", err.Error())
	}
	if iface != nil {
		if err := pc.JoinGroup(iface, group); err != nil {
			return wire.TransportError("JoinGroup", iface.Name, err)
		}
		return nil
	}

	if err := pc.JoinGroup(nil, group); err == nil {
		return nil
	}

	joined := 0
	var lastErr error
	for _, ifi := range netutil.MulticastInterfaces() {
		if err := pc.JoinGroup(&ifi, group); err != nil {
			lastErr = err
			continue
		}
		joined++
	}
	if joined == 0 {
		if lastErr == nil {
			lastErr = errors.New("no multicast-capable interface")
		}
		return wire.TransportError("JoinGroup", cfg.Group, lastErr)
	}
	return nil
}

// Start runs the read loop in the background
func (r *Receiver) Start(handler func(*wire.Message)) {
	go r.run(handler)
}

func (r *Receiver) run(handler func(*wire.Message)) {
	defer close(r.done)

	buf := make([]byte, r.maxSize)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logging.Warn("Multicast receive failed", zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}

		key := src.String()
		asm, ok := r.assemblers[key]
		if !ok {
			asm = NewReassembler(r.maxPending)
			r.assemblers[key] = asm
		}

		msgs, err := asm.Feed(buf[:n])
		if err != nil {
			logging.Warn("Dropped malformed multicast data",
				zap.String("source", key),
				zap.Error(err),
			)
		}
		if asm.Pending() == 0 {
			delete(r.assemblers, key)
		}

		for _, msg := range msgs {
			handler(msg)
		}
	}
}

// Close releases the socket, which ends the read loop
func (r *Receiver) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
	})
	return err
}

// Done is closed when the read loop has exited
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// transport is the socket pair used by requesters and responders
type transport interface {
	Send(msg *wire.Message) error
	Start(handler func(*wire.Message))
	Close() error
}

type multicastTransport struct {
	sender   *Sender
	receiver *Receiver
}

func openMulticast(cfg Config) (transport, error) {
	sender, err := NewSender(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open multicast sender: %w", err)
	}
	receiver, err := NewReceiver(cfg)
	if err != nil {
		_ = sender.Close()
		return nil, fmt.Errorf("failed to open multicast receiver: %w", err)
	}
	return &multicastTransport{sender: sender, receiver: receiver}, nil
}

// openTransport is replaced in tests
var openTransport = openMulticast

func (t *multicastTransport) Send(msg *wire.Message) error {
	return t.sender.Send(msg)
}

func (t *multicastTransport) Start(handler func(*wire.Message)) {
	t.receiver.Start(handler)
}

func (t *multicastTransport) Close() error {
	return errors.Join(t.sender.Close(), t.receiver.Close())
}
