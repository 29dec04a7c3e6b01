// Package tap streams inetwork messages to WebSocket clients.
//
// A Monitor watches a tcp.Connection or a pubsub.Subscription and turns every
// message it receives into a JSON event:
//
//	{"name": "reading", "internal": false,
//	 "fields": [{"name": "celsius", "type": "Double", "value": 21.5}]}
//
// Clients attach at the configured path (default /ws) and only read. Slow
// clients miss events once their queue is full; the source connection is
// never blocked by the tap.
package tap
