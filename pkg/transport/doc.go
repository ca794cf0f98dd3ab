// Package transport provides the WebSocket connection used by the realtime
// client.
//
// The transport has no protocol awareness. It opens a socket to a URL with a
// sub-protocol, delivers inbound frames and close notifications to a
// Handler, and serializes outbound writes:
//
//	┌────────────────────────────────┐
//	│   JSON protocol messages       │
//	├────────────────────────────────┤
//	│   WebSocket (graphql-ws)       │
//	├────────────────────────────────┤
//	│   TLS (wss) / TCP (ws)         │
//	└────────────────────────────────┘
//
// Handler callbacks run on a single read goroutine, in frame order, and
// start only after Dial returns. Handlers must not call Conn.Close.
package transport
