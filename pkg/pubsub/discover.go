package pubsub

import (
	"context"

	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/tcp"
)

// Discover looks for one publisher named name (any when empty) and returns
// an unstarted subscription to it, or nil when none answered in time
func Discover(ctx context.Context, cfg tcp.Config, name string) *Subscription {
	subs := discover(ctx, cfg, name, discovery.Single)
	if len(subs) == 0 {
		return nil
	}
	return subs[0]
}

// DiscoverAll returns an unstarted subscription to every publisher that
// answered within the discovery timeout
func DiscoverAll(ctx context.Context, cfg tcp.Config, name string) []*Subscription {
	return discover(ctx, cfg, name, discovery.Multiple)
}

func discover(ctx context.Context, cfg tcp.Config, name string, mode discovery.Mode) []*Subscription {
	results := discovery.Discover(ctx, cfg.Discovery, discovery.Query{
		Type: discovery.Heap,
		Name: name,
		Mode: mode,
	})
	subs := make([]*Subscription, 0, len(results))
	for _, r := range results {
		subs = append(subs, NewSubscription(r.IP, r.Port, cfg))
	}
	return subs
}
