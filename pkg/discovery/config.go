package discovery

import (
	"fmt"
	"net"
	"time"

	"github.com/grouplab/inetwork/pkg/wire"
)

// Defaults for the multicast discovery protocol
const (
	DefaultGroup           = "224.0.1.141"
	DefaultPort            = 2541
	DefaultTTL             = 64
	DefaultMaxDatagramSize = 512
	DefaultTimeout         = 1000 * time.Millisecond
	DefaultResponseDelay   = 50 * time.Millisecond
	DefaultResponseJitter  = 20 * time.Millisecond
	DefaultMaxPending      = 1 << 20
)

// Config holds the multicast discovery settings shared by requesters and
// responders
type Config struct {
	// Group is the IPv4 multicast group address
	Group string

	// Port is the UDP port of the group
	Port int

	// TTL is the multicast time-to-live of outgoing datagrams
	TTL int

	// Loopback delivers our own datagrams back to this host, which same-host
	// peers rely on
	Loopback bool

	// MaxDatagramSize is the largest datagram sent or read. Larger frames are
	// split and reassembled by the receiver.
	MaxDatagramSize int

	// MaxPending bounds the bytes buffered per sender while reassembling
	MaxPending int

	// Timeout is the default collection window of a discovery
	Timeout time.Duration

	// ResponseDelay is how long a responder waits before answering a lookup
	ResponseDelay time.Duration

	// ResponseJitter is a random extra delay in [0, ResponseJitter)
	ResponseJitter time.Duration

	// Interface selects the multicast interface by name or address; empty
	// uses the system default
	Interface string

	// MDNS additionally advertises responders over mDNS
	MDNS bool
}

// DefaultConfig returns the documented protocol defaults
func DefaultConfig() Config {
	return Config{
		Group:           DefaultGroup,
		Port:            DefaultPort,
		TTL:             DefaultTTL,
		Loopback:        true,
		MaxDatagramSize: DefaultMaxDatagramSize,
		MaxPending:      DefaultMaxPending,
		Timeout:         DefaultTimeout,
		ResponseDelay:   DefaultResponseDelay,
		ResponseJitter:  DefaultResponseJitter,
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	ip := net.ParseIP(c.Group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return wire.ConfigurationError("Validate", "group", fmt.Sprintf("%q is not an IPv4 multicast address", c.Group))
	}
	if c.Port < 1 || c.Port > 65535 {
		return wire.ConfigurationError("Validate", "port", fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.TTL < 0 || c.TTL > 255 {
		return wire.ConfigurationError("Validate", "ttl", fmt.Sprintf("ttl %d out of range", c.TTL))
	}
	if c.MaxDatagramSize < 16 || c.MaxDatagramSize > 65507 {
		return wire.ConfigurationError("Validate", "max_datagram_size", fmt.Sprintf("%d out of range [16, 65507]", c.MaxDatagramSize))
	}
	if c.Timeout <= 0 {
		return wire.ConfigurationError("Validate", "timeout", "timeout must be positive")
	}
	if c.ResponseDelay < 0 || c.ResponseJitter < 0 {
		return wire.ConfigurationError("Validate", "response_delay", "delays cannot be negative")
	}
	return nil
}

// GroupAddr returns the multicast destination
func (c Config) GroupAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.Group).To4(), Port: c.Port}
}

func (c Config) maxPending() int {
	if c.MaxPending <= 0 {
		return DefaultMaxPending
	}
	return c.MaxPending
}
