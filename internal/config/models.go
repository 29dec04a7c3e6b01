package config

import (
	"time"

	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/tcp"
)

// Settings represents the entire configuration file.
type Settings struct {
	Version   int               `yaml:"version"`
	LogLevel  string            `yaml:"log_level,omitempty"` // debug, info, warn, error; empty keeps logging off
	Server    ServerSettings    `yaml:"server"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Metrics   MetricsSettings   `yaml:"metrics"`
	Tap       TapSettings       `yaml:"tap"`
}

// ServerSettings configures servers, publishers and outgoing connections.
type ServerSettings struct {
	Host          string        `yaml:"host,omitempty"`      // Bind address; empty binds all interfaces
	Port          int           `yaml:"port,omitempty"`      // Fixed port; 0 probes from base_port
	BasePort      int           `yaml:"base_port"`           // First probed port
	PortStep      int           `yaml:"port_step"`           // Distance between probed ports
	MaxPortProbes int           `yaml:"max_port_probes"`     // Ports tried before giving up
	DialTimeout   time.Duration `yaml:"dial_timeout"`        // Connect timeout for remote connections
	WriteTimeout  time.Duration `yaml:"write_timeout"`       // Per-message write deadline
	StopTimeout   time.Duration `yaml:"stop_timeout"`        // Wait for loops on stop
	AsyncDispatch bool          `yaml:"async_dispatch"`      // One goroutine per received message
	Discoverable  bool          `yaml:"discoverable"`        // Answer discovery lookups
	Advertise     string        `yaml:"advertise,omitempty"` // Address announced in discovery
}

// DiscoverySettings configures the multicast discovery protocol.
type DiscoverySettings struct {
	Group           string        `yaml:"group"`
	Port            int           `yaml:"port"`
	TTL             int           `yaml:"ttl"`
	Loopback        bool          `yaml:"loopback"`
	MaxDatagramSize int           `yaml:"max_datagram_size"`
	Timeout         time.Duration `yaml:"timeout"`
	ResponseDelay   time.Duration `yaml:"response_delay"`
	ResponseJitter  time.Duration `yaml:"response_jitter"`
	Interface       string        `yaml:"interface,omitempty"` // Interface name or address; empty uses the default
	MDNS            bool          `yaml:"mdns"`                // Also advertise over mDNS
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Addr string `yaml:"addr,omitempty"` // Listen address, e.g. ":9090"; empty disables it
}

// TapSettings configures the WebSocket monitor.
type TapSettings struct {
	Addr string `yaml:"addr"` // Listen address of the monitor
}

// Default returns settings holding the documented defaults.
func Default() *Settings {
	tcpCfg := tcp.DefaultConfig()
	discCfg := discovery.DefaultConfig()

	return &Settings{
		Version: currentVersion,
		Server: ServerSettings{
			BasePort:      tcpCfg.BasePort,
			PortStep:      tcpCfg.PortStep,
			MaxPortProbes: tcpCfg.MaxPortProbes,
			DialTimeout:   tcpCfg.DialTimeout,
			WriteTimeout:  tcpCfg.WriteTimeout,
			StopTimeout:   tcpCfg.StopTimeout,
			Discoverable:  true,
		},
		Discovery: DiscoverySettings{
			Group:           discCfg.Group,
			Port:            discCfg.Port,
			TTL:             discCfg.TTL,
			Loopback:        discCfg.Loopback,
			MaxDatagramSize: discCfg.MaxDatagramSize,
			Timeout:         discCfg.Timeout,
			ResponseDelay:   discCfg.ResponseDelay,
			ResponseJitter:  discCfg.ResponseJitter,
		},
		Tap: TapSettings{
			Addr: "127.0.0.1:8080",
		},
	}
}

// DiscoveryConfig converts the discovery section.
func (s *Settings) DiscoveryConfig() discovery.Config {
	d := s.Discovery
	cfg := discovery.DefaultConfig()
	cfg.Group = d.Group
	cfg.Port = d.Port
	cfg.TTL = d.TTL
	cfg.Loopback = d.Loopback
	cfg.MaxDatagramSize = d.MaxDatagramSize
	cfg.Timeout = d.Timeout
	cfg.ResponseDelay = d.ResponseDelay
	cfg.ResponseJitter = d.ResponseJitter
	cfg.Interface = d.Interface
	cfg.MDNS = d.MDNS
	return cfg
}

// TCPConfig converts the server section, with the discovery section
// embedded for discoverable servers.
func (s *Settings) TCPConfig() tcp.Config {
	v := s.Server
	cfg := tcp.DefaultConfig()
	cfg.Host = v.Host
	cfg.Port = v.Port
	cfg.BasePort = v.BasePort
	cfg.PortStep = v.PortStep
	cfg.MaxPortProbes = v.MaxPortProbes
	cfg.DialTimeout = v.DialTimeout
	cfg.WriteTimeout = v.WriteTimeout
	cfg.StopTimeout = v.StopTimeout
	cfg.AsyncDispatch = v.AsyncDispatch
	cfg.Discoverable = v.Discoverable
	cfg.Advertise = v.Advertise
	cfg.Discovery = s.DiscoveryConfig()
	return cfg
}
