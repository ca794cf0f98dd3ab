package transport

import (
	"context"
	"errors"

	"github.com/gorilla/websocket"
)

// FrameType is the WebSocket data frame opcode.
type FrameType int

const (
	TextFrame   FrameType = websocket.TextMessage
	BinaryFrame FrameType = websocket.BinaryMessage
)

// String returns the frame type name.
func (f FrameType) String() string {
	switch f {
	case TextFrame:
		return "TEXT"
	case BinaryFrame:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Close codes used by the client.
const (
	CloseNormalClosure   = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	CloseAbnormalClosure = websocket.CloseAbnormalClosure
)

// Transport errors.
var (
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSubprotocolMismatch = errors.New("server did not accept sub-protocol")
)

// Handler receives connection notifications.
type Handler interface {
	// OnMessage is called for every inbound data frame.
	OnMessage(frameType FrameType, data []byte)

	// OnClose is called once when the connection ends for any reason.
	OnClose(code int, reason string)

	// OnError is called for read failures other than a clean close.
	// OnClose follows.
	OnError(err error)
}

// Conn is an open connection.
// Implemented by WebSocketConn.
type Conn interface {
	// Send writes one text frame. Safe for concurrent use.
	Send(data []byte) error

	// Close performs the closing handshake and releases the socket.
	// Calling Close more than once is a no-op.
	Close(code int, reason string) error

	// IsClosed reports whether the connection is closing or closed.
	IsClosed() bool
}

// Dialer opens connections.
// Implemented by WebSocketDialer.
type Dialer interface {
	Dial(ctx context.Context, url, subprotocol string, handler Handler) (Conn, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Conn   = (*WebSocketConn)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
)
