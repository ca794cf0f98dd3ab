package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageType is the "type" discriminator of a protocol message.
type MessageType string

// Request kinds.
const (
	TypeConnectionInit MessageType = "connection_init"
	TypeStart          MessageType = "start"
	TypeStop           MessageType = "stop"
)

// Response kinds.
const (
	TypeConnectionAck   MessageType = "connection_ack"
	TypeConnectionError MessageType = "connection_error"
	TypeKeepAlive       MessageType = "ka"
	TypeStartAck        MessageType = "start_ack"
	TypeData            MessageType = "data"
	TypeComplete        MessageType = "complete"
	TypeError           MessageType = "error"
)

var requestTypes = map[MessageType]struct{}{
	TypeConnectionInit: {},
	TypeStart:          {},
	TypeStop:           {},
}

var responseTypes = map[MessageType]struct{}{
	TypeConnectionAck:   {},
	TypeConnectionError: {},
	TypeKeepAlive:       {},
	TypeStartAck:        {},
	TypeData:            {},
	TypeComplete:        {},
	TypeError:           {},
}

// IsRequest reports whether t is one of the client-sent kinds.
func (t MessageType) IsRequest() bool {
	_, ok := requestTypes[t]
	return ok
}

// IsResponse reports whether t is one of the server-sent kinds.
func (t MessageType) IsResponse() bool {
	_, ok := responseTypes[t]
	return ok
}

// String returns the discriminator text.
func (t MessageType) String() string {
	return string(t)
}

// Errors returned when building or validating messages.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrNotRequest     = errors.New("message is not a request")
	ErrMissingID      = errors.New("message requires an id")
	ErrMissingQuery   = errors.New("subscription query is empty")
	ErrEmptyPayload   = errors.New("message has no payload")
	ErrUnexpectedType = errors.New("unexpected message type")
)

// Message is a protocol message in either direction.
//
// JSON encoding:
//
//	{"type": "start", "id": "...", "payload": {...}}
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks that an outbound request is well formed.
func (m *Message) Validate() error {
	if !m.Type.IsRequest() {
		return fmt.Errorf("%w: %q", ErrNotRequest, m.Type)
	}
	if (m.Type == TypeStart || m.Type == TypeStop) && m.ID == "" {
		return fmt.Errorf("%w: %s", ErrMissingID, m.Type)
	}
	if m.Type == TypeStart && len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPayload, m.Type)
	}
	return nil
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// ConnectionAckPayload is the payload of connection_ack.
type ConnectionAckPayload struct {
	// ConnectionTimeoutMs is the keep-alive interval in milliseconds.
	ConnectionTimeoutMs int64 `json:"connectionTimeoutMs"`
}

// ConnectionTimeout returns the keep-alive interval as a duration.
func (p ConnectionAckPayload) ConnectionTimeout() time.Duration {
	return time.Duration(p.ConnectionTimeoutMs) * time.Millisecond
}

// ErrorPayload is the payload of connection_error and error.
type ErrorPayload struct {
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail is one entry of an error payload.
type ErrorDetail struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
	Code      int    `json:"code,omitempty"`
}

// GraphQLRequest is the query and variables carried by a start message.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// StartPayload is the payload of start.
type StartPayload struct {
	// Data is the JSON text of a GraphQLRequest.
	Data       string          `json:"data"`
	Extensions StartExtensions `json:"extensions"`
}

// StartExtensions carries the authorization headers of a start message.
type StartExtensions struct {
	Authorization map[string]string `json:"authorization"`
}

// Request decodes the GraphQL request embedded in the payload.
func (p StartPayload) Request() (GraphQLRequest, error) {
	var req GraphQLRequest
	if err := json.Unmarshal([]byte(p.Data), &req); err != nil {
		return GraphQLRequest{}, fmt.Errorf("failed to decode start data: %w", err)
	}
	return req, nil
}

// DataPayload is the payload of data. The data field is opaque to the client.
type DataPayload struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorDetail   `json:"errors,omitempty"`
}

// NewConnectionInit returns a connection_init request.
func NewConnectionInit() *Message {
	return &Message{Type: TypeConnectionInit}
}

// NewStart returns a start request for the given subscription id.
// Nil variables are sent as an empty object.
func NewStart(id string, req GraphQLRequest, authorization map[string]string) (*Message, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingID, TypeStart)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrMissingQuery
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode start data: %w", err)
	}
	if authorization == nil {
		authorization = map[string]string{}
	}
	payload, err := json.Marshal(StartPayload{
		Data:       string(data),
		Extensions: StartExtensions{Authorization: authorization},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode start payload: %w", err)
	}
	return &Message{Type: TypeStart, ID: id, Payload: payload}, nil
}

// NewStop returns a stop request for the given subscription id.
func NewStop(id string) *Message {
	return &Message{Type: TypeStop, ID: id}
}

// ConnectionAck decodes a connection_ack payload.
func (m *Message) ConnectionAck() (ConnectionAckPayload, error) {
	var p ConnectionAckPayload
	if m.Type != TypeConnectionAck {
		return p, fmt.Errorf("%w: %s", ErrUnexpectedType, m.Type)
	}
	err := m.DecodePayload(&p)
	return p, err
}

// Start decodes a start payload.
func (m *Message) Start() (StartPayload, error) {
	var p StartPayload
	if m.Type != TypeStart {
		return p, fmt.Errorf("%w: %s", ErrUnexpectedType, m.Type)
	}
	err := m.DecodePayload(&p)
	return p, err
}

// Data decodes a data payload.
func (m *Message) Data() (DataPayload, error) {
	var p DataPayload
	if m.Type != TypeData {
		return p, fmt.Errorf("%w: %s", ErrUnexpectedType, m.Type)
	}
	err := m.DecodePayload(&p)
	return p, err
}

// Errors decodes the error entries of a connection_error or error payload.
// A missing payload yields no entries.
func (m *Message) Errors() ([]ErrorDetail, error) {
	if len(m.Payload) == 0 {
		return nil, nil
	}
	var p ErrorPayload
	if err := m.DecodePayload(&p); err != nil {
		return nil, err
	}
	return p.Errors, nil
}

// ErrorText returns a human readable description of an error message.
// It joins the entry messages, falling back to the raw payload text.
func (m *Message) ErrorText() string {
	details, err := m.Errors()
	if err != nil || len(details) == 0 {
		if len(m.Payload) > 0 {
			return string(m.Payload)
		}
		return string(m.Type)
	}
	parts := make([]string, 0, len(details))
	for _, d := range details {
		switch {
		case d.ErrorType != "":
			parts = append(parts, d.ErrorType+": "+d.Message)
		case d.Code != 0:
			parts = append(parts, fmt.Sprintf("%d: %s", d.Code, d.Message))
		default:
			parts = append(parts, d.Message)
		}
	}
	return strings.Join(parts, "; ")
}
