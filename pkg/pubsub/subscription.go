package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

// Internal control messages that mirror template lists across a link
const (
	RegisterTemplateName   = "RegTemp"
	UnregisterTemplateName = "UnregTemp"
	TemplateFieldName      = "temp"
)

// SubscriptionEvent is a subscription lifecycle transition
type SubscriptionEvent int

const (
	// Subscribed is raised when a subscription's connection comes up
	Subscribed SubscriptionEvent = iota + 1
	// Unsubscribed is raised when it goes away
	Unsubscribed
)

func (e SubscriptionEvent) String() string {
	switch e {
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return fmt.Sprintf("SubscriptionEvent(%d)", int(e))
	}
}

// SubscriptionHandler observes subscription lifecycle events
type SubscriptionHandler func(s *Subscription, ev SubscriptionEvent)

// MessageHandler receives one message arriving on a subscription
type MessageHandler func(s *Subscription, msg *wire.Message)

type templateHandler struct {
	template *Template
	handler  MessageHandler
}

// Subscription is one end of a pub/sub link: a connection plus the
// templates declared on it. On the subscriber side it is remote and sends
// its template changes to the publisher; on the publisher side it is
// accepted and mirrors what the subscriber declared.
type Subscription struct {
	conn *tcp.Connection

	mu        sync.RWMutex
	templates []*Template
	handlers  []templateHandler

	obsMu        sync.RWMutex
	onMessage    []MessageHandler
	onInternal   []MessageHandler
	onSubscribed []SubscriptionHandler
}

// NewSubscription creates an unstarted subscription to the publisher at
// host:port
func NewSubscription(host string, port int, cfg tcp.Config) *Subscription {
	s := &Subscription{conn: tcp.NewConnection(host, port, cfg)}
	s.attach()
	s.conn.OnConnection(s.handleConnection)
	return s
}

func newAcceptedSubscription(c *tcp.Connection) *Subscription {
	s := &Subscription{conn: c}
	s.attach()
	return s
}

func (s *Subscription) attach() {
	s.conn.OnMessage(s.handleMessage)
	s.conn.OnInternalMessage(s.handleInternal)
}

// Connection returns the underlying connection
func (s *Subscription) Connection() *tcp.Connection { return s.conn }

// IsRemote reports whether this is the subscriber side of the link
func (s *Subscription) IsRemote() bool { return s.conn.IsRemote() }

// IsRunning reports whether the connection is up
func (s *Subscription) IsRunning() bool { return s.conn.IsRunning() }

// OnMessage registers a handler for application messages that no
// per-template handler claimed
func (s *Subscription) OnMessage(h MessageHandler) {
	s.obsMu.Lock()
	s.onMessage = append(s.onMessage, h)
	s.obsMu.Unlock()
}

// OnInternalMessage registers a handler for internal messages other than
// template registration
func (s *Subscription) OnInternalMessage(h MessageHandler) {
	s.obsMu.Lock()
	s.onInternal = append(s.onInternal, h)
	s.obsMu.Unlock()
}

// OnSubscribed registers a lifecycle handler. Remote subscriptions raise
// events here; accepted ones are reported by their Publisher.
func (s *Subscription) OnSubscribed(h SubscriptionHandler) {
	s.obsMu.Lock()
	s.onSubscribed = append(s.onSubscribed, h)
	s.obsMu.Unlock()
}

// Start connects to the publisher. Templates registered before Start are
// announced once the connection is up.
func (s *Subscription) Start(ctx context.Context) error {
	return s.conn.Start(ctx)
}

// Stop closes the link. An accepted subscription is also dropped by its
// publisher.
func (s *Subscription) Stop() {
	if srv := s.conn.Server(); srv != nil {
		srv.RemoveConnection(s.conn)
		return
	}
	s.conn.Stop()
}

// SendMessage sends msg over the link
func (s *Subscription) SendMessage(msg *wire.Message) error {
	return s.conn.SendMessage(msg)
}

// Templates returns a snapshot of the declared templates
func (s *Subscription) Templates() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Template(nil), s.templates...)
}

// AcceptsTemplate reports whether any declared template matches candidate
func (s *Subscription) AcceptsTemplate(candidate *Template) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOfTemplate(s.templates, candidate) >= 0
}

func indexOfTemplate(list []*Template, candidate *Template) int {
	for i, t := range list {
		if t.Matches(candidate) {
			return i
		}
	}
	return -1
}

// RegisterTemplate declares interest in messages shaped like t. Messages
// matching t go to handler when it is non-nil, otherwise to the OnMessage
// handlers. A remote subscription also tells the publisher. Registering a
// template that is already declared does nothing.
func (s *Subscription) RegisterTemplate(t *Template, handler MessageHandler) error {
	if t == nil || t.Name() == "" {
		return wire.ConfigurationError("RegisterTemplate", "", "template needs a name")
	}
	if !s.addTemplate(t, handler) {
		return nil
	}
	if s.IsRemote() && s.IsRunning() {
		return s.sendTemplate(RegisterTemplateName, t)
	}
	return nil
}

// UnregisterTemplate withdraws t and its handler. A remote subscription
// also tells the publisher.
func (s *Subscription) UnregisterTemplate(t *Template) error {
	if t == nil {
		return nil
	}
	if !s.removeTemplate(t) {
		return nil
	}
	if s.IsRemote() && s.IsRunning() {
		return s.sendTemplate(UnregisterTemplateName, t)
	}
	return nil
}

func (s *Subscription) addTemplate(t *Template, handler MessageHandler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOfTemplate(s.templates, t) >= 0 {
		return false
	}
	s.templates = append(s.templates, t)
	if handler != nil {
		s.handlers = append(s.handlers, templateHandler{template: t, handler: handler})
	}
	return true
}

func (s *Subscription) removeTemplate(t *Template) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOfTemplate(s.templates, t)
	if i < 0 {
		return false
	}
	removed := s.templates[i]
	s.templates = append(s.templates[:i], s.templates[i+1:]...)
	for j, h := range s.handlers {
		if h.template == removed {
			s.handlers = append(s.handlers[:j], s.handlers[j+1:]...)
			break
		}
	}
	return true
}

func (s *Subscription) sendTemplate(name string, t *Template) error {
	msg := wire.NewInternalMessage(name)
	if err := msg.AddObject(TemplateFieldName, t); err != nil {
		return err
	}
	return s.SendMessage(msg)
}

func (s *Subscription) handlerFor(msg *wire.Message) MessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.handlers) == 0 {
		return nil
	}
	shape := TemplateOf(msg)
	for _, h := range s.handlers {
		if h.template.Matches(shape) {
			return h.handler
		}
	}
	return nil
}

func (s *Subscription) handleMessage(_ *tcp.Connection, msg *wire.Message) {
	if h := s.handlerFor(msg); h != nil {
		h(s, msg)
		return
	}

	s.obsMu.RLock()
	handlers := s.onMessage
	s.obsMu.RUnlock()
	for _, h := range handlers {
		h(s, msg)
	}
}

func (s *Subscription) handleInternal(_ *tcp.Connection, msg *wire.Message) {
	switch msg.Name() {
	case RegisterTemplateName, UnregisterTemplateName:
		t, err := templateFrom(msg)
		if err != nil {
			logging.Warn("Dropping malformed template message",
				zap.String("remote_addr", s.conn.RemoteAddr()),
				zap.String("name", msg.Name()),
				zap.Error(err),
			)
			return
		}
		if msg.Name() == RegisterTemplateName {
			s.addTemplate(t, nil)
		} else {
			s.removeTemplate(t)
		}
		logging.Debug("Template mirrored",
			zap.String("remote_addr", s.conn.RemoteAddr()),
			zap.String("op", msg.Name()),
			zap.Stringer("template", t),
		)
		return
	}

	s.obsMu.RLock()
	handlers := s.onInternal
	s.obsMu.RUnlock()
	for _, h := range handlers {
		h(s, msg)
	}
}

func templateFrom(msg *wire.Message) (*Template, error) {
	obj, err := msg.GetObject(TemplateFieldName, TemplateTransferID)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*Template)
	if !ok || t == nil {
		return nil, wire.DecodingError("templateFrom", TemplateFieldName, "field does not hold a template")
	}
	return t, nil
}

func (s *Subscription) handleConnection(_ *tcp.Connection, ev tcp.ConnectionEvent) {
	switch ev {
	case tcp.Connected:
		for _, t := range s.Templates() {
			if err := s.sendTemplate(RegisterTemplateName, t); err != nil {
				logging.Warn("Failed to announce template", zap.Stringer("template", t), zap.Error(err))
			}
		}
		s.emit(Subscribed)
	case tcp.Disconnected:
		s.emit(Unsubscribed)
	}
}

func (s *Subscription) emit(ev SubscriptionEvent) {
	s.obsMu.RLock()
	handlers := s.onSubscribed
	s.obsMu.RUnlock()
	for _, h := range handlers {
		h(s, ev)
	}
}

func (s *Subscription) String() string {
	if srv := s.conn.Server(); srv != nil {
		return fmt.Sprintf("%s [%d]", s.conn.RemoteAddr(), srv.Port())
	}
	return s.conn.RemoteAddr()
}
