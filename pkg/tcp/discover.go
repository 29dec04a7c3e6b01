package tcp

import (
	"context"

	"github.com/grouplab/inetwork/pkg/discovery"
)

// Discover looks for one server named name (any name when empty) and returns
// an unstarted connection to it, or nil when none answered in time
func Discover(ctx context.Context, cfg Config, name string) *Connection {
	conns := discover(ctx, cfg, name, discovery.Single)
	if len(conns) == 0 {
		return nil
	}
	return conns[0]
}

// DiscoverAll collects every server answering within the discovery timeout
// and returns an unstarted connection to each
func DiscoverAll(ctx context.Context, cfg Config, name string) []*Connection {
	return discover(ctx, cfg, name, discovery.Multiple)
}

func discover(ctx context.Context, cfg Config, name string, mode discovery.Mode) []*Connection {
	results := discovery.Discover(ctx, cfg.Discovery, discovery.Query{
		Type: discovery.Tcp,
		Name: name,
		Mode: mode,
	})
	return ConnectionsFor(results, cfg)
}

// ConnectionsFor turns discovery results into unstarted connections
func ConnectionsFor(results []discovery.Result, cfg Config) []*Connection {
	conns := make([]*Connection, 0, len(results))
	for _, r := range results {
		conns = append(conns, NewConnection(r.IP, r.Port, cfg))
	}
	return conns
}
