package pubsub

import (
	"sync"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

// Publisher is the broker of a pub/sub session. Every accepted connection
// becomes a Subscription; application messages from one subscription are
// forwarded to every other subscription that declared a matching template,
// and internal messages to every other subscription.
type Publisher struct {
	server *tcp.Server

	mu   sync.RWMutex
	subs map[string]*Subscription

	obsMu          sync.RWMutex
	onSubscription []SubscriptionHandler
}

// NewPublisher binds a server named name. The server announces itself as a
// Heap in discovery.
func NewPublisher(name string, cfg tcp.Config) (*Publisher, error) {
	if name == "" {
		return nil, wire.ConfigurationError("NewPublisher", "", "a publisher must have a name")
	}
	cfg.DiscoveryType = discovery.Heap

	server, err := tcp.NewServer(name, cfg)
	if err != nil {
		return nil, err
	}
	p := &Publisher{
		server: server,
		subs:   make(map[string]*Subscription),
	}
	server.OnConnection(p.handleConnection)
	return p, nil
}

// Name returns the publisher name
func (p *Publisher) Name() string { return p.server.Name() }

// Port returns the bound port
func (p *Publisher) Port() int { return p.server.Port() }

// Addr returns the listening address
func (p *Publisher) Addr() string { return p.server.Addr() }

// IsRunning reports whether the publisher accepts subscribers
func (p *Publisher) IsRunning() bool { return p.server.IsRunning() }

// IsDiscoverable reports whether the publisher answers discovery lookups
func (p *Publisher) IsDiscoverable() bool { return p.server.IsDiscoverable() }

// SetDiscoverable starts or stops answering discovery lookups
func (p *Publisher) SetDiscoverable(on bool) error { return p.server.SetDiscoverable(on) }

// Start begins accepting subscribers
func (p *Publisher) Start() error { return p.server.Start() }

// Stop drops every subscriber and closes the listener
func (p *Publisher) Stop() { p.server.Stop() }

// OnSubscription registers a handler for subscribers joining and leaving
func (p *Publisher) OnSubscription(h SubscriptionHandler) {
	p.obsMu.Lock()
	p.onSubscription = append(p.onSubscription, h)
	p.obsMu.Unlock()
}

// Subscriptions returns a snapshot of the current subscribers
func (p *Publisher) Subscriptions() []*Subscription {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	return out
}

// Publish sends msg from the publisher itself to every subscriber whose
// templates match (all of them for an internal message) and returns how
// many sends succeeded
func (p *Publisher) Publish(msg *wire.Message) int {
	return p.forward(nil, msg)
}

func (p *Publisher) handleConnection(c *tcp.Connection, ev tcp.ConnectionEvent) {
	switch ev {
	case tcp.Connected:
		sub := newAcceptedSubscription(c)
		sub.OnMessage(p.relay)
		sub.OnInternalMessage(p.relay)

		p.mu.Lock()
		p.subs[c.ID()] = sub
		p.mu.Unlock()

		metrics.SubscriptionAdded()
		logging.Info("Subscriber joined", zap.String("publisher", p.Name()), zap.String("remote_addr", c.RemoteAddr()))
		p.emit(sub, Subscribed)

	case tcp.Disconnected:
		p.mu.Lock()
		sub, ok := p.subs[c.ID()]
		delete(p.subs, c.ID())
		p.mu.Unlock()
		if !ok {
			return
		}

		metrics.SubscriptionRemoved()
		logging.Info("Subscriber left", zap.String("publisher", p.Name()), zap.String("remote_addr", c.RemoteAddr()))
		p.emit(sub, Unsubscribed)
	}
}

func (p *Publisher) relay(from *Subscription, msg *wire.Message) {
	p.forward(from, msg)
}

func (p *Publisher) forward(from *Subscription, msg *wire.Message) int {
	shape := TemplateOf(msg)
	sent := 0
	for _, sub := range p.Subscriptions() {
		if sub == from {
			continue
		}
		if !msg.IsInternal() && !sub.AcceptsTemplate(shape) {
			metrics.FanoutDropped()
			logging.Debug("Unsupported message for subscriber",
				zap.String("remote_addr", sub.Connection().RemoteAddr()),
				zap.Stringer("template", shape),
			)
			continue
		}
		if err := sub.SendMessage(msg); err != nil {
			logging.Debug("Forward failed", zap.String("remote_addr", sub.Connection().RemoteAddr()), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (p *Publisher) emit(sub *Subscription, ev SubscriptionEvent) {
	p.obsMu.RLock()
	handlers := p.onSubscription
	p.obsMu.RUnlock()
	for _, h := range handlers {
		h(sub, ev)
	}
}
