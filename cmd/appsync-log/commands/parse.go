// Package commands implements the appsync-log CLI commands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// FilterOptions holds the filter flags shared by view, export and filter.
// Empty fields match everything.
type FilterOptions struct {
	ConnID         string
	SubscriptionID string
	TimeStart      string
	TimeEnd        string
	Layer          string
	Direction      string
	Category       string
	Types          string // comma separated message types
	ExcludeTypes   string // comma separated message types
}

// Build converts the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID:   o.ConnID,
		SubscriptionID: o.SubscriptionID,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	var err error
	if filter.MessageTypes, err = parseTypes(o.Types); err != nil {
		return filter, err
	}
	if filter.ExcludeMessageTypes, err = parseTypes(o.ExcludeTypes); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseLayer parses a layer string (case-insensitive).
func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "client":
		return log.LayerClient, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or client)", s)
	}
}

// parseDirection parses a direction string (case-insensitive).
func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "keepalive", "ka":
		return log.CategoryKeepAlive, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, keepalive, state, or error)", s)
	}
}

var knownTypes = []wire.MessageType{
	wire.TypeConnectionInit, wire.TypeStart, wire.TypeStop,
	wire.TypeConnectionAck, wire.TypeConnectionError, wire.TypeKeepAlive,
	wire.TypeStartAck, wire.TypeData, wire.TypeComplete, wire.TypeError,
}

// parseTypes parses a comma separated list of protocol message types.
func parseTypes(s string) ([]wire.MessageType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var types []wire.MessageType
	for _, part := range strings.Split(s, ",") {
		t := wire.MessageType(strings.ToLower(strings.TrimSpace(part)))
		if !t.IsRequest() && !t.IsResponse() {
			return nil, fmt.Errorf("invalid message type: %s", part)
		}
		types = append(types, t)
	}
	return types, nil
}
