package tcp

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/grouplab/inetwork/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerRequiresName(t *testing.T) {
	_, err := NewServer("", testConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrConfiguration)
}

func TestNewServerProbesPorts(t *testing.T) {
	// hold the base port if nobody else does; either way the server must land
	// on base + k*step
	if ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", DefaultBasePort)); err == nil {
		defer ln.Close()
	}

	s, err := NewServer("probe", testConfig())
	require.NoError(t, err)
	defer s.Stop()

	assert.Greater(t, s.Port(), DefaultBasePort)
	assert.Zero(t, (s.Port()-DefaultBasePort)%DefaultPortStep)
}

func TestNewServerExplicitPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp4", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	_, err = NewServer("busy", cfg)
	assert.ErrorIs(t, err, wire.ErrConfiguration)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Port = 70000 },
		func(c *Config) { c.BasePort = 0 },
		func(c *Config) { c.PortStep = 0 },
		func(c *Config) { c.MaxPortProbes = 0 },
		func(c *Config) { c.StopTimeout = -1 },
		func(c *Config) { c.Discoverable = true; c.Discovery.Port = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestCandidatePorts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPortProbes = 3
	assert.Equal(t, []int{10001, 10003, 10005}, cfg.candidatePorts())

	cfg.Port = 4242
	assert.Equal(t, []int{4242}, cfg.candidatePorts())
}

// serverSide finds the accepted connection that pairs with client
func serverSide(t *testing.T, s *Server, client *Connection) *Connection {
	t.Helper()
	var found *Connection
	require.Eventually(t, func() bool {
		for _, c := range s.Connections() {
			if c.RemoteAddr() == client.LocalAddr() {
				found = c
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return found
}

func TestBroadcastExcludes(t *testing.T) {
	s := startServer(t, "broadcast")

	clients := make([]*Connection, 3)
	inboxes := make([]chan *wire.Message, 3)
	for i := range clients {
		clients[i] = dial(t, s)
		inboxes[i] = collect(clients[i])
	}
	require.Eventually(t, func() bool { return len(s.Connections()) == 3 }, 2*time.Second, 10*time.Millisecond)

	excluded := serverSide(t, s, clients[1])
	sent := s.BroadcastMessage(wire.NewMessage("news"), excluded)
	assert.Equal(t, 2, sent)

	assert.Equal(t, "news", receive(t, inboxes[0]).Name())
	assert.Equal(t, "news", receive(t, inboxes[2]).Name())
	select {
	case msg := <-inboxes[1]:
		t.Fatalf("excluded connection received %s", msg.Name())
	case <-time.After(150 * time.Millisecond):
	}
}

func TestBroadcastDuringAccepts(t *testing.T) {
	s := startServer(t, "churn")
	first := dial(t, s)
	inbox := collect(first)
	require.Eventually(t, func() bool { return len(s.Connections()) == 1 }, 2*time.Second, 10*time.Millisecond)

	var (
		wg    sync.WaitGroup
		extra []*Connection
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			c := NewConnection("127.0.0.1", s.Port(), testConfig())
			if err := c.Start(t.Context()); err == nil {
				extra = append(extra, c)
			}
		}
	}()
	for i := 0; i < 20; i++ {
		s.BroadcastMessage(wire.NewMessage("tick"))
	}
	wg.Wait()
	defer func() {
		for _, c := range extra {
			c.Stop()
		}
	}()

	for i := 0; i < 20; i++ {
		assert.Equal(t, "tick", receive(t, inbox).Name())
	}
}

func TestServerDropsFailedConnection(t *testing.T) {
	s := startServer(t, "drop")
	events := make(chan ConnectionEvent, 4)
	s.OnConnection(func(_ *Connection, ev ConnectionEvent) { events <- ev })

	client := dial(t, s)
	assert.Equal(t, Connected, <-events)
	require.Len(t, s.Connections(), 1)

	client.Stop()

	select {
	case ev := <-events:
		assert.Equal(t, Disconnected, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not drop the closed connection")
	}
	assert.Empty(t, s.Connections())
}

func TestRemoveConnection(t *testing.T) {
	s := startServer(t, "remove")
	var disconnects int
	var mu sync.Mutex
	s.OnConnection(func(_ *Connection, ev ConnectionEvent) {
		if ev == Disconnected {
			mu.Lock()
			disconnects++
			mu.Unlock()
		}
	})

	client := dial(t, s)
	accepted := serverSide(t, s, client)
	assert.False(t, accepted.IsRemote())
	assert.Same(t, s, accepted.Server())

	s.RemoveConnection(accepted)
	s.RemoveConnection(accepted)

	assert.Empty(t, s.Connections())
	assert.False(t, accepted.IsRunning())
	mu.Lock()
	assert.Equal(t, 1, disconnects)
	mu.Unlock()
}

func TestServerStop(t *testing.T) {
	s, err := NewServer("stop", testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Equal(t, "stop", s.Name())

	client := NewConnection("127.0.0.1", s.Port(), testConfig())
	require.NoError(t, client.Start(t.Context()))
	defer client.Stop()
	require.Eventually(t, func() bool { return len(s.Connections()) == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.Connections())
	assert.ErrorIs(t, s.Start(), wire.ErrConfiguration)

	_, err = net.DialTimeout("tcp4", fmt.Sprintf("127.0.0.1:%d", s.Port()), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestStopWhileAcceptingLeavesNothingRunning(t *testing.T) {
	s, err := NewServer("racer", testConfig())
	require.NoError(t, err)

	accepted := make(chan *Connection, 1)
	s.OnConnection(func(c *Connection, ev ConnectionEvent) {
		if ev == Connected {
			s.Stop()
			accepted <- c
		}
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	client := NewConnection("127.0.0.1", s.Port(), testConfig())
	require.NoError(t, client.Start(t.Context()))
	defer client.Stop()

	var c *Connection
	select {
	case c = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}

	// let the accept loop finish with c
	time.Sleep(100 * time.Millisecond)

	assert.False(t, c.IsRunning())
	assert.Empty(t, s.Connections())
	assert.ErrorIs(t, c.SendMessage(wire.NewMessage("late")), wire.ErrTransport)
	assert.ErrorIs(t, c.Start(t.Context()), wire.ErrConfiguration)

	// the socket was closed, so the client sees the end of the stream
	require.Eventually(t, func() bool { return !client.IsRunning() }, 2*time.Second, 10*time.Millisecond)
}

func TestRemoveUnstartedAcceptedConnection(t *testing.T) {
	s, err := NewServer("remove-early", testConfig())
	require.NoError(t, err)

	s.OnConnection(func(c *Connection, ev ConnectionEvent) {
		if ev == Connected {
			s.RemoveConnection(c)
		}
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	client := NewConnection("127.0.0.1", s.Port(), testConfig())
	require.NoError(t, client.Start(t.Context()))
	defer client.Stop()

	require.Eventually(t, func() bool { return !client.IsRunning() }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Connections())
	assert.True(t, s.IsRunning())
}
