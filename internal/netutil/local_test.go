package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIPv4(t *testing.T) {
	ip := LocalIPv4()
	require.NotNil(t, ip)
	assert.NotNil(t, ip.To4(), "LocalIPv4() = %v, want an IPv4 address", ip)
	assert.False(t, ip.IsLinkLocalUnicast())
}

func TestResolveInterface(t *testing.T) {
	iface, err := ResolveInterface("")
	assert.NoError(t, err)
	assert.Nil(t, iface)

	_, err = ResolveInterface("no-such-interface0")
	assert.Error(t, err)
}

func TestInterfaceForLoopback(t *testing.T) {
	iface, err := InterfaceForAddress("127.0.0.1")
	if err != nil {
		t.Skipf("no interface carries 127.0.0.1: %v", err)
	}
	assert.NotEmpty(t, iface.Name)
}
