// Package netutil holds small socket and interface helpers shared by the
// transport and discovery packages.
package netutil

import (
	"fmt"
	"net"
	"strings"
)

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface,
// skipping link-local addresses. Hosts without one get 127.0.0.1.
func LocalIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil && !ip.IsLinkLocalUnicast() {
				return ip
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}

// InterfaceForAddress retrieves the network interface carrying address
func InterfaceForAddress(address string) (*net.Interface, error) {
	address = strings.TrimPrefix(address, "[")
	address = strings.TrimSuffix(address, "]")

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.String() == address {
				return &iface, nil
			}
		}
	}

	return nil, fmt.Errorf("no matching interface found for address %v", address)
}

// ResolveInterface accepts an interface name or one of its addresses. An
// empty string yields nil, meaning the system default.
func ResolveInterface(nameOrAddr string) (*net.Interface, error) {
	if nameOrAddr == "" {
		return nil, nil
	}
	if iface, err := net.InterfaceByName(nameOrAddr); err == nil {
		return iface, nil
	}
	return InterfaceForAddress(nameOrAddr)
}

// MulticastInterfaces lists up interfaces that support multicast
func MulticastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	out := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			out = append(out, iface)
		}
	}
	return out
}
