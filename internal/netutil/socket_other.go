//go:build !unix

package netutil

import (
	"context"
	"fmt"
	"net"
)

// ListenReusableUDP binds 0.0.0.0:port. Port sharing between processes is
// only available on unix platforms.
func ListenReusableUDP(ctx context.Context, port int) (*net.UDPConn, error) {
	var cfg net.ListenConfig
	addr := net.UDPAddr{IP: net.IPv4zero, Port: port}
	pc, err := cfg.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp port %d: %w", port, err)
	}
	return pc.(*net.UDPConn), nil
}
