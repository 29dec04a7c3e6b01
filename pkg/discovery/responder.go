package discovery

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

// Responder answers lookups for one server until closed
type Responder struct {
	t         transport
	cfg       Config
	self      Endpoint
	advertise *Advertiser

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewResponder opens the multicast sockets and starts answering lookups that
// ask for self.Type (or All) and, when they carry a name, self.Name
func NewResponder(cfg Config, self Endpoint) (*Responder, error) {
	if self.IP == "" || self.Port <= 0 {
		return nil, wire.ConfigurationError("NewResponder", self.Name, "responder needs an address and port")
	}

	t, err := openTransport(cfg)
	if err != nil {
		return nil, err
	}
	r := newResponder(t, cfg, self)

	if cfg.MDNS {
		adv, err := NewAdvertiser(self)
		if err != nil {
			logging.Warn("mDNS advertisement unavailable", zap.Error(err))
		} else {
			r.advertise = adv
		}
	}
	return r, nil
}

func newResponder(t transport, cfg Config, self Endpoint) *Responder {
	r := &Responder{t: t, cfg: cfg, self: self}
	t.Start(r.handle)
	logging.LogDiscovery("responder_started",
		zap.Stringer("type", self.Type),
		zap.String("name", self.Name),
		zap.String("ip", self.IP),
		zap.Int("port", self.Port),
	)
	return r
}

// Endpoint returns what the responder advertises
func (r *Responder) Endpoint() Endpoint {
	return r.self
}

func (r *Responder) handle(msg *wire.Message) {
	a, ok := parseAnnouncement(msg)
	if !ok || a.Kind != LookupName || a.isOwn(r.self) {
		return
	}
	if !r.self.Type.Matches(a.Type) {
		return
	}
	if a.Name != "" && a.Name != r.self.Name {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	delay := r.cfg.ResponseDelay
	if r.cfg.ResponseJitter > 0 {
		delay += rand.N(r.cfg.ResponseJitter)
	}

	r.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer r.wg.Done()
		r.respond(a)
	})
}

func (r *Responder) respond(lookup announcement) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	if err := r.t.Send(r.self.announce(ResponseName).message()); err != nil {
		logging.Warn("Failed to send discovery response", zap.Error(err))
		return
	}
	metrics.DiscoveryLookup("responder")
	logging.LogDiscovery("response_sent",
		zap.Stringer("requested", lookup.Type),
		zap.String("requested_name", lookup.Name),
	)
}

// Close stops answering and releases the sockets
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	if r.advertise != nil {
		r.advertise.Shutdown()
	}
	return r.t.Close()
}
