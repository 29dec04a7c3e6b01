package discovery

import (
	"errors"
	"sync"
	"testing"

	"github.com/grouplab/inetwork/pkg/wire"
)

// memBus is an in-memory multicast group. Every Send is delivered to every
// open endpoint, the sender included, like a looped-back multicast socket.
type memBus struct {
	mu        sync.Mutex
	endpoints []*memEndpoint
	sent      []string
}

type memEndpoint struct {
	bus     *memBus
	mu      sync.Mutex
	handler func(*wire.Message)
	closed  bool
}

func withBus(t *testing.T) *memBus {
	t.Helper()
	bus := &memBus{}
	previous := openTransport
	openTransport = func(Config) (transport, error) { return bus.open(), nil }
	t.Cleanup(func() { openTransport = previous })
	return bus
}

func (b *memBus) open() *memEndpoint {
	ep := &memEndpoint{bus: b}
	b.mu.Lock()
	b.endpoints = append(b.endpoints, ep)
	b.mu.Unlock()
	return ep
}

func (b *memBus) sentNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (e *memEndpoint) Send(msg *wire.Message) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return errors.New("endpoint closed")
	}

	data, err := msg.Marshal()
	if err != nil {
		return err
	}

	e.bus.mu.Lock()
	e.bus.sent = append(e.bus.sent, msg.Name())
	targets := append([]*memEndpoint(nil), e.bus.endpoints...)
	e.bus.mu.Unlock()

	for _, target := range targets {
		go func(target *memEndpoint) {
			copyMsg, _, err := wire.ParseMessage(data)
			if err != nil {
				return
			}
			target.deliver(copyMsg)
		}(target)
	}
	return nil
}

func (e *memEndpoint) deliver(msg *wire.Message) {
	e.mu.Lock()
	h := e.handler
	closed := e.closed
	e.mu.Unlock()
	if h != nil && !closed {
		h(msg)
	}
}

func (e *memEndpoint) Start(handler func(*wire.Message)) {
	e.mu.Lock()
	e.handler = handler
	e.mu.Unlock()
}

func (e *memEndpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
