package tap

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grouplab/inetwork/pkg/tcp"
	"github.com/grouplab/inetwork/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMonitor(t *testing.T) (*Monitor, string) {
	t.Helper()
	m := NewMonitor(Config{})
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http") + defaultPath
}

func attach(t *testing.T, m *Monitor, url string) *websocket.Conn {
	t.Helper()
	before := m.Clients()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return m.Clients() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestMonitorPublish(t *testing.T) {
	m, url := startMonitor(t)
	first := attach(t, m, url)
	second := attach(t, m, url)

	msg := wire.NewMessage("reading")
	require.NoError(t, msg.AddDouble("celsius", 21.5))
	assert.Equal(t, 2, m.Publish(msg))

	for _, conn := range []*websocket.Conn{first, second} {
		ev := readEvent(t, conn)
		assert.Equal(t, "reading", ev.Name)
		require.Len(t, ev.Fields, 1)
		assert.Equal(t, "celsius", ev.Fields[0].Name)
		assert.Equal(t, "Double", ev.Fields[0].Type)
		assert.EqualValues(t, 21.5, ev.Fields[0].Value)
	}
}

func TestMonitorDetachesClosedClients(t *testing.T) {
	m, url := startMonitor(t)
	conn := attach(t, m, url)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	require.Eventually(t, func() bool { return m.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, m.Publish(wire.NewMessage("nobody")))
}

func TestMonitorDropsWhenQueueFull(t *testing.T) {
	m := NewMonitor(Config{ClientBuffer: 1})
	c := &client{send: make(chan []byte, 1), done: make(chan struct{})}
	m.clients[c] = struct{}{}

	assert.Equal(t, 1, m.Publish(wire.NewMessage("a")))
	assert.Equal(t, 0, m.Publish(wire.NewMessage("b")))
	assert.Len(t, c.send, 1)
}

func TestMonitorStopDisconnectsClients(t *testing.T) {
	m, url := startMonitor(t)
	conn := attach(t, m, url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, 0, m.Clients())
}

func TestMonitorStartTwice(t *testing.T) {
	m := NewMonitor(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, m.Start())
	defer func() { _ = m.Stop(context.Background()) }()

	assert.NotEqual(t, "127.0.0.1:0", m.Addr())
	assert.Error(t, m.Start())
}

func TestWatchConnection(t *testing.T) {
	m, url := startMonitor(t)
	ws := attach(t, m, url)

	cfg := tcp.DefaultConfig()
	srv, err := tcp.NewServer("tap-source", cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	conn := tcp.NewConnection("127.0.0.1", srv.Port(), cfg)
	m.WatchConnection(conn)
	require.NoError(t, conn.Start(context.Background()))
	defer conn.Stop()
	require.Eventually(t, func() bool { return len(srv.Connections()) == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := wire.NewMessage("status")
	require.NoError(t, msg.AddString("state", "ok"))
	require.NoError(t, msg.AddBool("ready", true))
	assert.Equal(t, 1, srv.BroadcastMessage(msg))

	ev := readEvent(t, ws)
	assert.Equal(t, "status", ev.Name)
	assert.False(t, ev.Internal)
	require.Len(t, ev.Fields, 2)
	assert.Equal(t, "ok", ev.Fields[0].Value)
	assert.Equal(t, true, ev.Fields[1].Value)

	assert.Equal(t, 1, srv.BroadcastMessage(wire.NewInternalMessage("ping")))
	ev = readEvent(t, ws)
	assert.Equal(t, "ping", ev.Name)
	assert.True(t, ev.Internal)
}
