package appsync

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// redacted replaces secrets in protocol log events.
const redacted = "[REDACTED]"

func (c *Client) emitEvent(event log.Event) {
	if c.plog == nil {
		return
	}
	event.Timestamp = time.Now()
	event.ConnectionID = c.config.ConnectionID
	c.mu.RLock()
	event.Endpoint = c.realtimeHost
	c.mu.RUnlock()
	c.plog.Log(event)
}

func (c *Client) logMessage(dir log.Direction, msg *wire.Message) {
	if c.plog == nil {
		return
	}
	category := log.CategoryMessage
	if msg.Type == wire.TypeKeepAlive {
		category = log.CategoryKeepAlive
	}
	c.emitEvent(log.Event{
		Direction:      dir,
		Layer:          log.LayerWire,
		Category:       category,
		SubscriptionID: msg.ID,
		Message:        log.NewMessageEvent(redact(msg)),
	})
}

// redact returns msg with the API key of a start message masked. Other
// messages are returned unchanged.
func redact(msg *wire.Message) *wire.Message {
	if msg.Type != wire.TypeStart {
		return msg
	}
	start, err := msg.Start()
	if err != nil {
		return msg
	}
	if _, ok := start.Extensions.Authorization[auth.HeaderAPIKey]; !ok {
		return msg
	}

	masked := maps.Clone(start.Extensions.Authorization)
	masked[auth.HeaderAPIKey] = redacted
	start.Extensions.Authorization = masked

	payload, err := json.Marshal(start)
	if err != nil {
		return msg
	}
	return &wire.Message{Type: msg.Type, ID: msg.ID, Payload: payload}
}

func (c *Client) logState(entity log.StateEntity, id, oldState, newState, reason string) {
	c.emitEvent(log.Event{
		Layer:          log.LayerClient,
		Category:       log.CategoryState,
		SubscriptionID: id,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) logError(layer log.Layer, err error, context string, code *int) {
	c.emitEvent(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Code:    code,
			Context: context,
		},
	})
}

func (c *Client) logFrame(data []byte, binary bool) {
	c.emitEvent(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(data, binary),
	})
}
