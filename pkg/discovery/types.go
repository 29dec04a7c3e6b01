package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ServerType flags which kind of endpoint a lookup asks for or a responder offers
type ServerType int32

const (
	// All matches every responder
	All ServerType = 1
	// Tcp is a plain transport server
	Tcp ServerType = 2
	// Heap is a pub/sub publisher
	Heap ServerType = 4
)

// Matches reports whether a responder of type t answers a lookup for requested
func (t ServerType) Matches(requested ServerType) bool {
	return requested == All || t&requested != 0
}

// String returns a human-readable name for the server type
func (t ServerType) String() string {
	var parts []string
	if t&All != 0 {
		parts = append(parts, "all")
	}
	if t&Tcp != 0 {
		parts = append(parts, "tcp")
	}
	if t&Heap != 0 {
		parts = append(parts, "heap")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("ServerType(%d)", int32(t))
	}
	return strings.Join(parts, "|")
}

// ParseServerType accepts "all", "tcp" or "heap"
func ParseServerType(s string) (ServerType, error) {
	switch strings.ToLower(s) {
	case "all", "":
		return All, nil
	case "tcp":
		return Tcp, nil
	case "heap", "pubsub":
		return Heap, nil
	default:
		return 0, fmt.Errorf("unknown server type %q (want all, tcp or heap)", s)
	}
}

// Mode selects how many responses a discovery waits for
type Mode int

const (
	// Single completes on the first valid response
	Single Mode = 1
	// Multiple collects every response until the timeout
	Multiple Mode = 2
)

func (m Mode) String() string {
	switch m {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Result describes one responder found during a discovery window
type Result struct {
	// Name is the responder's advertised name (may be empty)
	Name string

	// IP is the responder's advertised IPv4 address
	IP string

	// Port is the TCP port the responder accepts connections on
	Port int

	// Type is the responder's server type
	Type ServerType

	// Source tells how the result was found ("multicast" or "mdns")
	Source string

	// DiscoveredAt is when the response arrived
	DiscoveredAt time.Time
}

// Address returns host:port for dialing the responder
func (r Result) Address() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}

// String returns a human-readable representation of the result
func (r Result) String() string {
	name := r.Name
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("%s %s at %s", r.Type, name, r.Address())
}

// Query describes one discovery attempt
type Query struct {
	// Type is the kind of server to look for
	Type ServerType

	// Name restricts answers to responders with this name; empty accepts any
	Name string

	// Mode selects Single or Multiple collection
	Mode Mode

	// Timeout bounds the collection window; zero uses Config.Timeout
	Timeout time.Duration
}
