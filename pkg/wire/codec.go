package wire

import (
	"encoding/json"
	"fmt"
)

// Encode encodes an outbound request to wire text.
func Encode(msg *Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(msg)
}

// Marshal encodes a message of any kind without validation.
func Marshal(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	return data, nil
}

// Decode decodes wire text into a message.
// Text that is not a JSON object with a type field yields ErrMalformed.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if string(msg.Payload) == "null" {
		msg.Payload = nil
	}
	return &msg, nil
}

// IsResponse reports whether a decoded message is response-shaped.
func IsResponse(msg *Message) bool {
	return msg != nil && msg.Type.IsResponse()
}
