// Package discovery finds servers on the local network over UDP multicast.
//
// A requester sends one lookup ("LU") message to the multicast group and
// collects response ("RE") messages until its window closes. A responder
// listens on the same group and answers lookups that ask for its server type
// (or All) and, when the lookup carries a name, its name.
//
// # Protocol
//
// LU and RE are ordinary application messages carrying four fields:
//   - type: the requested or offered ServerType (int)
//   - name: the server name, or null
//   - ip: the responder's IPv4 address, or null in a lookup
//   - port: the responder's TCP port, or -1 in a lookup
//
// Frames larger than Config.MaxDatagramSize are split across datagrams and
// reassembled per sender. Responders wait Config.ResponseDelay plus a small
// random jitter before answering.
//
// # Usage Example
//
//	// Find one publisher named "weather"
//	results := discovery.Discover(ctx, discovery.DefaultConfig(), discovery.Query{
//	    Type: discovery.Heap,
//	    Name: "weather",
//	    Mode: discovery.Single,
//	})
//	for _, r := range results {
//	    fmt.Printf("Found: %s\n", r)
//	}
//
// Discover never returns an error. When the multicast sockets cannot be
// opened the failure is logged and the result is empty.
//
// # mDNS
//
// With Config.MDNS set, responders also register an mDNS service
// (_inetwork-tcp._tcp or _inetwork-heap._tcp) so that standard tools can see
// them. Browse lists such services.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Peers must be on the same local network segment unless TTL allows routing
// - Firewall must allow UDP on the group port (2541 by default)
//
// # Thread Safety
//
// Requesters and responders are safe for concurrent use. Several discoveries
// and responders may share a host; the group port is bound with SO_REUSEPORT.
package discovery
