package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

func init() {
	color.NoColor = true
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const testConnID = "abc12345-6789-0123-4567-890abcdef012"

// createTestLogFile writes events to a fresh event file and returns its path.
func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.cbor")
	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func msgEvent(offset time.Duration, dir log.Direction, typ wire.MessageType, id, payload string) log.Event {
	cat := log.CategoryMessage
	if typ == wire.TypeKeepAlive {
		cat = log.CategoryKeepAlive
	}
	return log.Event{
		Timestamp:    testTime.Add(offset),
		ConnectionID: testConnID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     cat,
		Endpoint:     "example.appsync-realtime-api.us-east-1.amazonaws.com",
		Message:      &log.MessageEvent{Type: typ, ID: id, Payload: payload},
	}
}

// sessionEvents is a short trace: handshake, one subscription with two
// data messages, a keep-alive and a server error for another id.
func sessionEvents() []log.Event {
	return []log.Event{
		msgEvent(0, log.DirectionOut, wire.TypeConnectionInit, "", ""),
		msgEvent(10*time.Millisecond, log.DirectionIn, wire.TypeConnectionAck, "", `{"connectionTimeoutMs":300000}`),
		msgEvent(20*time.Millisecond, log.DirectionOut, wire.TypeStart, "prices", `{"data":"{\"query\":\"subscription { p }\"}"}`),
		msgEvent(30*time.Millisecond, log.DirectionIn, wire.TypeStartAck, "prices", ""),
		msgEvent(40*time.Millisecond, log.DirectionIn, wire.TypeData, "prices", `{"data":{"p":1}}`),
		msgEvent(50*time.Millisecond, log.DirectionIn, wire.TypeKeepAlive, "", ""),
		msgEvent(60*time.Millisecond, log.DirectionIn, wire.TypeData, "prices", `{"data":{"p":2}}`),
		msgEvent(70*time.Millisecond, log.DirectionIn, wire.TypeError, "orders", `{"errors":[{"message":"denied"}]}`),
		{
			Timestamp:      testTime.Add(80 * time.Millisecond),
			ConnectionID:   testConnID,
			Layer:          log.LayerClient,
			Category:       log.CategoryState,
			SubscriptionID: "prices",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySubscription,
				OldState: "ACTIVE",
				NewState: "ENDED",
				Reason:   "closed",
			},
		},
		{
			Timestamp:    testTime.Add(90 * time.Millisecond),
			ConnectionID: testConnID,
			Layer:        log.LayerClient,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: "CLOSING",
				NewState: "CLOSED",
			},
		},
	}
}
