package log

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// jsonRecord is one line written by JSONLogger.
type jsonRecord struct {
	Date           string          `json:"date"`
	Level          string          `json:"level"`
	ConnectionID   string          `json:"conn_id,omitempty"`
	Direction      string          `json:"direction"`
	Category       string          `json:"category"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	State          *jsonState      `json:"state,omitempty"`
	Error          string          `json:"error,omitempty"`
	Frame          int             `json:"frame_size,omitempty"`
}

type jsonState struct {
	Entity string `json:"entity"`
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type jsonMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JSONLogger writes one JSON object per event, one per line.
// Message events carry the protocol message itself as "payload".
type JSONLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLogger creates a JSONLogger writing to w.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{w: w}
}

// Log writes the event as a single line. Write errors are ignored.
func (l *JSONLogger) Log(event Event) {
	line, err := MarshalJSONLine(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(line, '\n'))
}

// MarshalJSONLine converts an event to its JSON line representation,
// without the trailing newline.
func MarshalJSONLine(event Event) ([]byte, error) {
	rec := jsonRecord{
		Date:           event.Timestamp.UTC().Format(time.RFC3339Nano),
		Level:          "INFO",
		ConnectionID:   event.ConnectionID,
		Direction:      event.Direction.String(),
		Category:       event.Category.String(),
		SubscriptionID: event.SubscriptionID,
	}

	switch {
	case event.Message != nil:
		msg := jsonMessage{Type: event.Message.Type.String(), ID: event.Message.ID}
		if event.Message.Payload != "" && json.Valid([]byte(event.Message.Payload)) {
			msg.Payload = json.RawMessage(event.Message.Payload)
		}
		rec.Payload, _ = json.Marshal(msg)
	case event.StateChange != nil:
		rec.State = &jsonState{
			Entity: event.StateChange.Entity.String(),
			From:   event.StateChange.OldState,
			To:     event.StateChange.NewState,
			Reason: event.StateChange.Reason,
		}
	case event.Error != nil:
		rec.Level = "ERROR"
		rec.Error = event.Error.Message
		if event.Error.Context != "" {
			rec.Error = event.Error.Context + ": " + event.Error.Message
		}
	case event.Frame != nil:
		rec.Level = "WARNING"
		rec.Frame = event.Frame.Size
	}
	return json.Marshal(rec)
}

// Compile-time interface satisfaction check.
var _ Logger = (*JSONLogger)(nil)
