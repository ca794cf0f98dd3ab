package log

import (
	"errors"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Filter specifies criteria for selecting events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// SubscriptionID filters by subscription, matching the event's
	// SubscriptionID or its message id.
	SubscriptionID string

	// MessageTypes keeps only message events of these types.
	MessageTypes []wire.MessageType

	// ExcludeMessageTypes drops message events of these types.
	ExcludeMessageTypes []wire.MessageType
}

// Matches reports whether the event satisfies every criterion.
func (f *Filter) Matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.SubscriptionID != "" && subscriptionOf(event) != f.SubscriptionID {
		return false
	}
	if len(f.MessageTypes) > 0 {
		if event.Message == nil || !slices.Contains(f.MessageTypes, event.Message.Type) {
			return false
		}
	}
	if event.Message != nil && slices.Contains(f.ExcludeMessageTypes, event.Message.Type) {
		return false
	}
	return true
}

func subscriptionOf(event Event) string {
	if event.SubscriptionID != "" {
		return event.SubscriptionID
	}
	if event.Message != nil {
		return event.Message.ID
	}
	return ""
}

// Reader streams events from a CBOR event file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader that reads all events from path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that yields only events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event.
// Returns io.EOF when no more events are available.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.Matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every event in path matching filter.
func ReadAll(path string, filter Filter) ([]Event, error) {
	r, err := NewFilteredReader(path, filter)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var events []Event
	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}
