package appsync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
	}{
		{"https", "https://abc.appsync-api.us-east-1.amazonaws.com/graphql", "wss://abc.appsync-realtime-api.us-east-1.amazonaws.com/graphql"},
		{"wss", "wss://abc.appsync-api.us-east-1.amazonaws.com/graphql", "wss://abc.appsync-realtime-api.us-east-1.amazonaws.com/graphql"},
		{"http", "http://localhost:8080/graphql", "ws://localhost:8080/graphql"},
		{"custom domain", "https://api.example.com/graphql", "wss://api.example.com/graphql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, err := parseEndpoint(tt.endpoint)
			require.NoError(t, err)

			u, err := RealtimeURL(endpoint, map[string]string{"x-api-key": "k"})
			require.NoError(t, err)

			base := *u
			base.RawQuery = ""
			assert.Equal(t, tt.want, base.String())

			header, err := base64.StdEncoding.DecodeString(u.Query().Get("header"))
			require.NoError(t, err)
			assert.JSONEq(t, `{"x-api-key":"k"}`, string(header))
			assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("{}")), u.Query().Get("payload"))
		})
	}
}

func TestRealtimeURLDoesNotModifyEndpoint(t *testing.T) {
	endpoint, err := url.Parse("https://abc.appsync-api.us-east-1.amazonaws.com/graphql")
	require.NoError(t, err)

	_, err = RealtimeURL(endpoint, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc.appsync-api.us-east-1.amazonaws.com", endpoint.Host)
	assert.Empty(t, endpoint.RawQuery)
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, raw := range []string{"", "ftp://host/graphql", "https:///graphql", "::"} {
		_, err := parseEndpoint(raw)
		assert.ErrorIs(t, err, ErrInvalidConfig, raw)
	}
}

func TestWatchdog(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(func() { fired.Add(1) })

	assert.ErrorIs(t, w.reset(), ErrNoKeepAliveInterval)

	require.NoError(t, w.arm(60*time.Millisecond))
	assert.Equal(t, 60*time.Millisecond, w.currentInterval())

	for range 4 {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, w.reset())
	}
	assert.Equal(t, int32(0), fired.Load())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.stop()
}

func TestWatchdogStop(t *testing.T) {
	var fired atomic.Int32
	w := newWatchdog(func() { fired.Add(1) })
	require.NoError(t, w.arm(20*time.Millisecond))
	w.stop()

	// Resets after stop are ignored.
	require.NoError(t, w.reset())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestMessageQueue(t *testing.T) {
	q := newMessageQueue()
	ctx := context.Background()

	a := &wire.Message{Type: wire.TypeData, ID: "a"}
	b := &wire.Message{Type: wire.TypeData, ID: "b"}
	assert.True(t, q.push(a))
	assert.True(t, q.push(b))
	assert.Equal(t, 2, q.len())

	got, err := q.pop(ctx)
	require.NoError(t, err)
	assert.Same(t, a, got)

	q.close()
	assert.False(t, q.push(&wire.Message{Type: wire.TypeData}), "push after close is dropped")

	got, err = q.pop(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = q.pop(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestMessageQueueBlocksUntilPush(t *testing.T) {
	q := newMessageQueue()
	msg := &wire.Message{Type: wire.TypeData}

	got := make(chan *wire.Message)
	go func() {
		m, _ := q.pop(context.Background())
		got <- m
	}()

	time.Sleep(20 * time.Millisecond)
	q.push(msg)

	select {
	case m := <-got:
		assert.Same(t, msg, m)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestMessageQueueContext(t *testing.T) {
	q := newMessageQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscriptionSet(t *testing.T) {
	s := newSubscriptionSet()
	a := &Subscription{id: "a"}
	b := &Subscription{id: "b"}
	other := &Subscription{id: "a"}

	require.NoError(t, s.reserve("b"))
	require.NoError(t, s.add(b))
	require.NoError(t, s.reserve("a"))
	require.NoError(t, s.add(a))
	assert.ErrorIs(t, s.reserve("a"), ErrSubscriptionExists)
	assert.Equal(t, []string{"a", "b"}, s.ids())

	assert.False(t, s.remove(other), "only the member itself may be removed")
	assert.True(t, s.remove(a))
	assert.False(t, s.remove(a))

	drained := s.drain()
	assert.Equal(t, []*Subscription{b}, drained)
	assert.Equal(t, 0, s.len())
	assert.ErrorIs(t, s.reserve("a"), ErrClientClosed)
	assert.ErrorIs(t, s.add(a), ErrClientClosed)
	assert.Empty(t, s.drain())
}

func TestSubscriptionSetReservation(t *testing.T) {
	s := newSubscriptionSet()

	require.NoError(t, s.reserve("x"))
	assert.ErrorIs(t, s.reserve("x"), ErrSubscriptionExists)
	assert.Empty(t, s.ids(), "a reservation is not live")

	s.release("x")
	require.NoError(t, s.reserve("x"))

	// Draining while a start is in flight refuses the promotion and
	// consumes the reservation.
	s.drain()
	assert.ErrorIs(t, s.add(&Subscription{id: "x"}), ErrClientClosed)
	assert.Empty(t, s.reserved)
}

func TestSubscriptionSetConcurrentReserve(t *testing.T) {
	for range 50 {
		s := newSubscriptionSet()

		var won atomic.Int32
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.reserve("dup") == nil {
					won.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), won.Load())
	}
}

func TestSubscriptionSetRemoveRace(t *testing.T) {
	for range 50 {
		s := newSubscriptionSet()
		sub := &Subscription{id: "x"}
		require.NoError(t, s.reserve("x"))
		require.NoError(t, s.add(sub))

		var claimed atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if s.remove(sub) {
				claimed.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			claimed.Add(int32(len(s.drain())))
		}()
		wg.Wait()

		assert.Equal(t, int32(1), claimed.Load())
	}
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Op: wire.TypeStart}
	assert.Equal(t, "start: operation timed out", err.Error())
	assert.True(t, errors.Is(err, ErrTimeout))

	err = &TimeoutError{Op: wire.TypeStop, Errors: []string{"a", "b"}}
	assert.Contains(t, err.Error(), "collected 2 errors")

	var collected []string
	msg := err.Error()
	require.NoError(t, json.Unmarshal([]byte(msg[len("stop: operation timed out, collected 2 errors: "):]), &collected))
	assert.Equal(t, []string{"a", "b"}, collected)
}

func TestServerError(t *testing.T) {
	msg := &wire.Message{
		Type:    wire.TypeError,
		ID:      "s1",
		Payload: json.RawMessage(`{"errors":[{"errorType":"BadRequest","message":"nope"}]}`),
	}
	err := newServerError(msg)
	assert.Equal(t, "error for s1: BadRequest: nope", err.Error())
	assert.ErrorIs(t, err, ErrServerRejected)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestRedact(t *testing.T) {
	start, err := wire.NewStart("s", wire.GraphQLRequest{Query: "q"}, map[string]string{"x-api-key": "secret", "host": "h"})
	require.NoError(t, err)

	masked := redact(start)
	assert.NotContains(t, string(masked.Payload), "secret")
	assert.Contains(t, string(start.Payload), "secret", "original is untouched")

	p, err := masked.Start()
	require.NoError(t, err)
	assert.Equal(t, "h", p.Extensions.Authorization["host"])
	assert.Equal(t, redacted, p.Extensions.Authorization["x-api-key"])

	stop := wire.NewStop("s")
	assert.Same(t, stop, redact(stop))
}
