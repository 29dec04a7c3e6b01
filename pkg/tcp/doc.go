// Package tcp carries framed messages over persistent TCP connections.
//
// A Connection owns one socket and one receive loop. The loop reads a frame
// at a time, decodes it into a wire.Message and hands it to the registered
// handlers (OnMessage for application traffic, OnInternalMessage for
// internal traffic) before reading the next. Sends are serialized per
// connection.
//
// A Server listens on a port chosen by probing 10001, 10003, 10005, ...
// unless one is configured, and keeps the set of accepted connections. A
// connection that fails on send or receive is stopped and removed from its
// server, which raises Disconnected.
//
// # Usage Example
//
//	srv, err := tcp.NewServer("echo", tcp.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	srv.OnConnection(func(c *tcp.Connection, ev tcp.ConnectionEvent) {
//	    if ev == tcp.Connected {
//	        c.OnMessage(func(c *tcp.Connection, msg *wire.Message) {
//	            _ = c.SendMessage(msg)
//	        })
//	    }
//	})
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
// Servers with Config.Discoverable set answer multicast lookups, and
// Discover returns a connection to the first server that answered.
package tcp
