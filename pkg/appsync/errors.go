package appsync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Fatal errors. Each of these triggers cancellation of the client.
var (
	ErrNoConnection        = errors.New("no connection")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrAuthNotImplemented  = auth.ErrNotImplemented
	ErrNoKeepAliveInterval = errors.New("keep-alive received before interval was set")
	ErrKeepAliveTimeout    = errors.New("keep-alive timeout")
	ErrConnectionClosed    = errors.New("connection closed")
)

// Per-exchange and usage errors.
var (
	ErrTimeout              = errors.New("operation timed out")
	ErrServerRejected       = errors.New("rejected by server")
	ErrClientClosed         = errors.New("client is closed")
	ErrAlreadyConnected     = errors.New("already connected")
	ErrInvalidConfig        = errors.New("invalid config")
	ErrSubscriptionClosed   = errors.New("subscription closed")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// TimeoutError is returned when an exchange gets no matching response in
// time. Errors holds the untargeted server errors received meanwhile.
type TimeoutError struct {
	Op     wire.MessageType
	Errors []string
}

func (e *TimeoutError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, ErrTimeout)
	}
	collected, _ := json.Marshal(e.Errors)
	return fmt.Sprintf("%s: %v, collected %d errors: %s", e.Op, ErrTimeout, len(e.Errors), collected)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ServerError is a connection_error, or an error message targeted at the
// failing exchange.
type ServerError struct {
	Kind    wire.MessageType
	ID      string
	Details []wire.ErrorDetail
	Text    string
}

func newServerError(msg *wire.Message) *ServerError {
	details, _ := msg.Errors()
	return &ServerError{
		Kind:    msg.Type,
		ID:      msg.ID,
		Details: details,
		Text:    msg.ErrorText(),
	}
}

func (e *ServerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s for %s: %s", e.Kind, e.ID, e.Text)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

// Is reports whether target is ErrServerRejected.
func (e *ServerError) Is(target error) bool {
	return target == ErrServerRejected
}
