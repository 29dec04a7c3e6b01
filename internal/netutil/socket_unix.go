//go:build unix

package netutil

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenReusableUDP binds 0.0.0.0:port with SO_REUSEADDR and SO_REUSEPORT
// set, so several processes on one host can listen on the same multicast port.
func ListenReusableUDP(ctx context.Context, port int) (*net.UDPConn, error) {
	// Using x/sys/unix package for more up-to-date syscall numbers
	cfg := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var err error
			ctrlErr := c.Control(func(fd uintptr) {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if err != nil {
					return
				}
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if ctrlErr != nil {
				return ctrlErr
			}
			return err
		},
	}

	addr := net.UDPAddr{IP: net.IPv4zero, Port: port}
	pc, err := cfg.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on reusable udp port %d: %w", port, err)
	}
	return pc.(*net.UDPConn), nil
}
