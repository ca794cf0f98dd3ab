package log

import (
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Event is one entry of a protocol trace.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the client instance (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Endpoint is the realtime host the client talks to.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// SubscriptionID is set for events that concern one subscription.
	SubscriptionID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Undecodable frame
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Decoded protocol message
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/subscription state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound (server to client) event.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound (client to server) event.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where the event was captured.
type Layer uint8

const (
	// LayerTransport is the WebSocket layer (raw frames, close codes).
	LayerTransport Layer = 0
	// LayerWire is the JSON message layer.
	LayerWire Layer = 1
	// LayerClient is the connection and subscription management layer.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	// CategoryMessage is a protocol message other than keep-alive.
	CategoryMessage Category = 0
	// CategoryKeepAlive is a ka message.
	CategoryKeepAlive Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryKeepAlive:
		return "KEEPALIVE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a frame the client could not decode.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame (truncated to MaxFrameData bytes).
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Binary is set for non-text frames.
	Binary bool `cbor:"4,keyasint,omitempty"`
}

// MaxFrameData bounds FrameEvent.Data.
const MaxFrameData = 1024

// NewFrameEvent captures data, truncating it to MaxFrameData.
func NewFrameEvent(data []byte, binary bool) *FrameEvent {
	f := &FrameEvent{Size: len(data), Binary: binary}
	if len(data) > MaxFrameData {
		f.Data = append([]byte(nil), data[:MaxFrameData]...)
		f.Truncated = true
	} else {
		f.Data = append([]byte(nil), data...)
	}
	return f
}

// MessageEvent captures a decoded protocol message.
type MessageEvent struct {
	Type wire.MessageType `cbor:"1,keyasint"`

	// ID is the subscription id (empty for connection-level messages).
	ID string `cbor:"2,keyasint,omitempty"`

	// Payload is the JSON text of the payload.
	Payload string `cbor:"3,keyasint,omitempty"`
}

// NewMessageEvent captures msg.
func NewMessageEvent(msg *wire.Message) *MessageEvent {
	return &MessageEvent{
		Type:    msg.Type,
		ID:      msg.ID,
		Payload: string(msg.Payload),
	}
}

// StateChangeEvent captures connection and subscription lifecycle events.
type StateChangeEvent struct {
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the client connection.
	StateEntityConnection StateEntity = 0
	// StateEntitySubscription is one subscription.
	StateEntitySubscription StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is a WebSocket close code or server error code, if any.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
