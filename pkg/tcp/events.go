package tcp

import (
	"fmt"
	"sync"

	"github.com/grouplab/inetwork/pkg/wire"
)

// ConnectionEvent is a connection lifecycle transition
type ConnectionEvent int

const (
	// Connected is raised when a connection starts running
	Connected ConnectionEvent = iota + 1
	// Disconnected is raised when a running connection stops
	Disconnected
)

func (e ConnectionEvent) String() string {
	switch e {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("ConnectionEvent(%d)", int(e))
	}
}

// ConnectionHandler observes connection lifecycle events
type ConnectionHandler func(c *Connection, ev ConnectionEvent)

// MessageHandler receives one decoded message
type MessageHandler func(c *Connection, msg *wire.Message)

// observers holds handler lists. Handlers run synchronously in
// registration order.
type observers struct {
	mu         sync.RWMutex
	message    []MessageHandler
	internal   []MessageHandler
	connection []ConnectionHandler
}

func (o *observers) addMessage(h MessageHandler) {
	o.mu.Lock()
	o.message = append(o.message, h)
	o.mu.Unlock()
}

func (o *observers) addInternal(h MessageHandler) {
	o.mu.Lock()
	o.internal = append(o.internal, h)
	o.mu.Unlock()
}

func (o *observers) addConnection(h ConnectionHandler) {
	o.mu.Lock()
	o.connection = append(o.connection, h)
	o.mu.Unlock()
}

func (o *observers) emitMessage(c *Connection, msg *wire.Message) {
	o.mu.RLock()
	handlers := o.message
	if msg.IsInternal() {
		handlers = o.internal
	}
	o.mu.RUnlock()

	for _, h := range handlers {
		h(c, msg)
	}
}

func (o *observers) emitConnection(c *Connection, ev ConnectionEvent) {
	o.mu.RLock()
	handlers := o.connection
	o.mu.RUnlock()

	for _, h := range handlers {
		h(c, ev)
	}
}
