package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grouplab/inetwork/internal/logging"
	"github.com/grouplab/inetwork/internal/metrics"
	"github.com/grouplab/inetwork/pkg/wire"
	"go.uber.org/zap"
)

// Discover sends one lookup and collects responses until the window closes:
// after q.Timeout, on ctx cancellation, or (in Single mode) on the first
// valid response. The sockets are opened for this call only.
//
// Discovery never fails hard. If the multicast sockets cannot be opened the
// failure is logged and an empty result returned.
func Discover(ctx context.Context, cfg Config, q Query) []Result {
	t, err := openTransport(cfg)
	if err != nil {
		logging.Warn("Discovery unavailable",
			zap.String("group", cfg.Group),
			zap.Int("port", cfg.Port),
			zap.Error(err),
		)
		return []Result{}
	}
	defer func() {
		logging.LogSuppressed("close discovery sockets", t.Close())
	}()

	return newRequester(t, cfg).discover(ctx, q)
}

// DiscoverAsync runs Discover in the background and hands the results to
// callback once the window closes
func DiscoverAsync(ctx context.Context, cfg Config, q Query, callback func([]Result)) {
	go func() {
		callback(Discover(ctx, cfg, q))
	}()
}

// requester runs one discovery session over a transport
type requester struct {
	t   transport
	cfg Config
	id  string

	mu      sync.Mutex
	query   Query
	active  bool
	results []Result
	seen    map[string]bool
	done    chan struct{}
}

func newRequester(t transport, cfg Config) *requester {
	return &requester{t: t, cfg: cfg, id: uuid.NewString()}
}

func (r *requester) discover(ctx context.Context, q Query) []Result {
	if q.Type == 0 {
		q.Type = All
	}
	if q.Mode == 0 {
		q.Mode = Multiple
	}
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	r.mu.Lock()
	r.query = q
	r.active = true
	r.results = make([]Result, 0)
	r.seen = make(map[string]bool)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.t.Start(r.handle)

	lookup := Endpoint{Type: q.Type, Name: q.Name, Port: -1}.announce(LookupName).message()
	if err := r.t.Send(lookup); err != nil {
		logging.Warn("Failed to send discovery lookup", zap.String("session", r.id), zap.Error(err))
	} else {
		metrics.DiscoveryLookup("requester")
		logging.LogDiscovery("lookup_sent",
			zap.String("session", r.id),
			zap.Stringer("type", q.Type),
			zap.String("name", q.Name),
			zap.Stringer("mode", q.Mode),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	out := make([]Result, len(r.results))
	copy(out, r.results)

	logging.LogDiscovery("complete", zap.String("session", r.id), zap.Int("results", len(out)))
	return out
}

// handle is called from the transport's read loop
func (r *requester) handle(msg *wire.Message) {
	a, ok := parseAnnouncement(msg)
	if !ok || a.Kind != ResponseName {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}
	if a.IP == "" || a.Port <= 0 || !a.Type.Matches(r.query.Type) ||
		(r.query.Name != "" && a.Name != r.query.Name) {
		metrics.DiscoveryResponse("ignored")
		return
	}

	res := a.result("multicast")
	key := res.Address()
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	res.DiscoveredAt = time.Now()
	r.results = append(r.results, res)
	metrics.DiscoveryResponse("accepted")
	logging.LogDiscovery("response_accepted", zap.String("session", r.id), zap.Stringer("result", res))

	if r.query.Mode == Single {
		r.active = false
		close(r.done)
	}
}
