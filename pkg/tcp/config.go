package tcp

import (
	"fmt"
	"time"

	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/wire"
)

// Defaults for servers and connections
const (
	DefaultBasePort      = 10001
	DefaultPortStep      = 2
	DefaultMaxPortProbes = 64
	DefaultDialTimeout   = 5 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultStopTimeout   = 100 * time.Millisecond
)

// Config holds the transport settings shared by servers and connections
type Config struct {
	// Host is the address a server binds; empty binds all interfaces
	Host string

	// Port is the server port. Zero probes BasePort, BasePort+PortStep, ...
	Port int

	// BasePort is the first port probed
	BasePort int

	// PortStep is the distance between probed ports
	PortStep int

	// MaxPortProbes bounds the number of ports tried
	MaxPortProbes int

	// DialTimeout bounds connecting a remote connection
	DialTimeout time.Duration

	// WriteTimeout bounds one SendMessage; zero disables the deadline
	WriteTimeout time.Duration

	// StopTimeout bounds how long Stop waits for a receive or accept loop
	StopTimeout time.Duration

	// AsyncDispatch hands each received message to its own goroutine
	// instead of running handlers on the receive loop
	AsyncDispatch bool

	// Discoverable makes a started server answer discovery lookups
	Discoverable bool

	// DiscoveryType is the server type announced in discovery responses
	DiscoveryType discovery.ServerType

	// Advertise is the IPv4 address announced in discovery responses; empty
	// picks the first non-loopback address of this host
	Advertise string

	// Discovery holds the multicast settings used by Discoverable servers
	// and by Discover
	Discovery discovery.Config
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		BasePort:      DefaultBasePort,
		PortStep:      DefaultPortStep,
		MaxPortProbes: DefaultMaxPortProbes,
		DialTimeout:   DefaultDialTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		StopTimeout:   DefaultStopTimeout,
		DiscoveryType: discovery.Tcp,
		Discovery:     discovery.DefaultConfig(),
	}
}

// Validate checks the settings
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return wire.ConfigurationError("Validate", "port", fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Port == 0 {
		if c.BasePort < 1 || c.BasePort > 65535 {
			return wire.ConfigurationError("Validate", "base_port", fmt.Sprintf("base port %d out of range", c.BasePort))
		}
		if c.PortStep < 1 {
			return wire.ConfigurationError("Validate", "port_step", "port step must be positive")
		}
		if c.MaxPortProbes < 1 {
			return wire.ConfigurationError("Validate", "max_port_probes", "at least one port must be probed")
		}
	}
	if c.DialTimeout < 0 || c.WriteTimeout < 0 || c.StopTimeout < 0 {
		return wire.ConfigurationError("Validate", "timeout", "timeouts cannot be negative")
	}
	if c.Discoverable {
		return c.Discovery.Validate()
	}
	return nil
}

// candidatePorts lists the ports a server tries, in order
func (c Config) candidatePorts() []int {
	if c.Port > 0 {
		return []int{c.Port}
	}
	ports := make([]int, 0, c.MaxPortProbes)
	for i := 0; i < c.MaxPortProbes; i++ {
		p := c.BasePort + i*c.PortStep
		if p > 65535 {
			break
		}
		ports = append(ports, p)
	}
	return ports
}

func (c Config) discoveryType() discovery.ServerType {
	if c.DiscoveryType == 0 {
		return discovery.Tcp
	}
	return c.DiscoveryType
}
