package appsync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/transport"
	"github.com/jdfoster/appsync-realtime-util/pkg/transport/mocks"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Credential: auth.APIKey{Key: "k"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(context.Background(), Config{Endpoint: "ftp://host/graphql", Credential: auth.APIKey{Key: "k"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(context.Background(), Config{Endpoint: testEndpoint})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConnectHandshake(t *testing.T) {
	srv := newFakeServer()
	c := connectedClient(t, srv)

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 300*time.Second, c.KeepAliveInterval())
	assert.Len(t, srv.sentOf(wire.TypeConnectionInit), 1)
	assert.False(t, c.Aborted())
	assert.NoError(t, c.Err())

	require.Len(t, srv.urls, 1)
	u, err := url.Parse(srv.urls[0])
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "example.appsync-realtime-api.eu-west-1.amazonaws.com", u.Host)

	raw, err := base64.StdEncoding.DecodeString(u.Query().Get("header"))
	require.NoError(t, err)
	var header map[string]string
	require.NoError(t, json.Unmarshal(raw, &header))
	assert.Equal(t, map[string]string{
		"host":       "example.appsync-api.eu-west-1.amazonaws.com",
		"x-amz-date": "20240301T120000Z",
		"x-api-key":  "da2-test",
	}, header)

	payload, err := base64.StdEncoding.DecodeString(u.Query().Get("payload"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
}

func TestConnectTwice(t *testing.T) {
	c := connectedClient(t, newFakeServer())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectConnectionError(t *testing.T) {
	srv := newFakeServer()
	srv.on(wire.TypeConnectionInit, func(c *fakeConn, _ *wire.Message) {
		c.push(wire.TypeConnectionError, "", map[string]any{
			"errors": []map[string]string{{"errorType": "UnauthorizedException", "message": "bad key"}},
		})
	})
	c := newTestClient(t, srv)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrServerRejected)

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, wire.TypeConnectionError, se.Kind)
	assert.Contains(t, se.Error(), "UnauthorizedException: bad key")

	// Not fatal: the caller decides.
	assert.False(t, c.Aborted())
	assert.Equal(t, StateConnecting, c.State())
}

func TestConnectTimeoutCollectsUntargetedErrors(t *testing.T) {
	srv := newFakeServer()
	srv.on(wire.TypeConnectionInit, func(c *fakeConn, _ *wire.Message) {
		c.pushError("", "LimitExceeded", "slow down")
		c.pushError("", "Internal", "oops")
		c.pushError("other", "Ignored", "not ours")
	})
	c := newTestClient(t, srv, withTimeout(200*time.Millisecond))

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, wire.TypeConnectionInit, te.Op)
	assert.Equal(t, []string{"LimitExceeded: slow down", "Internal: oops"}, te.Errors)
	assert.Contains(t, te.Error(), "collected 2 errors")
	assert.False(t, c.Aborted())
}

func TestConnectAckWithoutTimeout(t *testing.T) {
	srv := newFakeServer()
	srv.keepAliveMs = 0
	c := newTestClient(t, srv)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrNoKeepAliveInterval)
}

func TestConnectDialFailure(t *testing.T) {
	dialer := mocks.NewMockDialer(t)
	dialer.EXPECT().
		Dial(mock.Anything, mock.Anything, Subprotocol, mock.Anything).
		Return(nil, errors.New("connection refused"))

	c, err := New(context.Background(), Config{
		Endpoint:   testEndpoint,
		Credential: auth.APIKey{Key: "da2-test"},
		Dialer:     dialer,
	})
	require.NoError(t, err)

	err = c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionFailed)

	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrConnectionFailed)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectUnsupportedCredential(t *testing.T) {
	// No expectations: dialing would fail the test.
	dialer := mocks.NewMockDialer(t)

	for _, cred := range []auth.Credential{auth.IAM{}, auth.OIDC{Token: "t"}, auth.Lambda{Token: "t"}} {
		t.Run(cred.Kind().String(), func(t *testing.T) {
			c, err := New(context.Background(), Config{
				Endpoint:   testEndpoint,
				Credential: cred,
				Dialer:     dialer,
			})
			require.NoError(t, err)

			require.ErrorIs(t, c.Connect(context.Background()), ErrAuthNotImplemented)
			waitDone(t, c)
			assert.ErrorIs(t, c.Err(), ErrAuthNotImplemented)
		})
	}
}

func TestKeepAliveTimeout(t *testing.T) {
	srv := newFakeServer()
	srv.keepAliveMs = 50
	c := connectedClient(t, srv)

	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrKeepAliveTimeout)
	assert.Equal(t, "client", srv.conn().closedBy)
}

func TestKeepAliveResetsDeadline(t *testing.T) {
	srv := newFakeServer()
	srv.keepAliveMs = 200
	c := connectedClient(t, srv)
	conn := srv.conn()

	for range 10 {
		time.Sleep(50 * time.Millisecond)
		conn.push(wire.TypeKeepAlive, "", nil)
	}
	assert.False(t, c.Aborted(), "keep-alives should hold the connection open")

	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrKeepAliveTimeout)
}

func TestKeepAliveBeforeAckIsFatal(t *testing.T) {
	srv := newFakeServer()
	srv.on(wire.TypeConnectionInit, func(c *fakeConn, _ *wire.Message) {
		c.push(wire.TypeKeepAlive, "", nil)
	})
	c := newTestClient(t, srv)

	require.Error(t, c.Connect(context.Background()))
	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrNoKeepAliveInterval)
}

func TestSendWithoutConnectionIsFatal(t *testing.T) {
	c := newTestClient(t, newFakeServer())

	_, err := c.Subscribe(context.Background(), "subscription { s }", nil)
	require.ErrorIs(t, err, ErrNoConnection)

	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrNoConnection)
}

func TestParentContextCancels(t *testing.T) {
	srv := newFakeServer()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := New(ctx, Config{
		Endpoint:   testEndpoint,
		Credential: auth.APIKey{Key: "k"},
		Dialer:     srv,
	})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	cancel()
	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), context.Canceled)
	assert.True(t, srv.conn().IsClosed())
}

func TestCancelAndShutdown(t *testing.T) {
	srv := newFakeServer()
	c := connectedClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	assert.ErrorIs(t, c.Err(), ErrClientClosed)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, "client", srv.conn().closedBy)
	assert.Equal(t, transport.CloseNormalClosure, srv.conn().closeCode)

	// Idempotent.
	c.Cancel()
	require.NoError(t, c.Shutdown(ctx))

	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
	_, err := c.Subscribe(context.Background(), "subscription { s }", nil)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestTransportCloseCancels(t *testing.T) {
	srv := newFakeServer()
	c := connectedClient(t, srv)
	sub, err := c.Subscribe(context.Background(), "subscription { s }", nil)
	require.NoError(t, err)

	srv.conn().drop(transport.CloseAbnormalClosure)

	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), ErrConnectionClosed)
	assert.Equal(t, 0, srv.countSent(wire.TypeStop, sub.ID()), "no stop on a dead socket")

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestInFlightExchangeEndsWithTransport(t *testing.T) {
	srv := newFakeServer()
	srv.on(wire.TypeStart, func(c *fakeConn, _ *wire.Message) {
		go c.drop(transport.CloseAbnormalClosure)
	})
	c := connectedClient(t, srv, withTimeout(10*time.Second))

	start := time.Now()
	_, err := c.Subscribe(context.Background(), "subscription { s }", nil)
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Less(t, time.Since(start), 5*time.Second)
	waitDone(t, c)
}

func TestObservers(t *testing.T) {
	srv := newFakeServer()
	c := newTestClient(t, srv)

	var mu sync.Mutex
	var requests, responses []wire.MessageType
	detachReq := c.OnRequest(func(m *wire.Message) {
		mu.Lock()
		requests = append(requests, m.Type)
		mu.Unlock()
	})
	detachResp := c.OnResponse(func(m *wire.Message) {
		mu.Lock()
		responses = append(responses, m.Type)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Subscribe(context.Background(), "subscription { s }", nil, WithID("a"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(responses) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []wire.MessageType{wire.TypeConnectionInit, wire.TypeStart}, requests)
	assert.Equal(t, []wire.MessageType{wire.TypeConnectionAck, wire.TypeStartAck}, responses)
	mu.Unlock()

	detachReq()
	detachResp()
	_, err = c.Subscribe(context.Background(), "subscription { s }", nil, WithID("b"))
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, requests, 2)
	mu.Unlock()
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	srv := newFakeServer()
	c := connectedClient(t, srv)
	sub, err := c.Subscribe(context.Background(), "subscription { s }", nil, WithID("a"))
	require.NoError(t, err)

	conn := srv.conn()
	conn.pushRaw([]byte("not json"))
	conn.pushRaw([]byte(`{"id":"a"}`))
	conn.pushRaw([]byte(`{"type":"start","id":"a","payload":{}}`))
	connHandler{c}.OnMessage(transport.BinaryFrame, []byte{0x01, 0x02})
	conn.pushData("a", map[string]int{"n": 1})

	msg, err := sub.Next(context.Background())
	require.NoError(t, err)
	data, err := msg.Data()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(data.Data))
	assert.False(t, c.Aborted())
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func TestProtocolLog(t *testing.T) {
	rec := &recordingLogger{}
	srv := newFakeServer()
	c := connectedClient(t, srv, func(cfg *Config) {
		cfg.ProtocolLogger = rec
		cfg.ConnectionID = "conn-1"
	})
	_, err := c.Subscribe(context.Background(), "subscription { s }", nil, WithID("a"))
	require.NoError(t, err)
	srv.conn().push(wire.TypeKeepAlive, "", nil)

	require.Eventually(t, func() bool {
		for _, e := range rec.snapshot() {
			if e.Category == log.CategoryKeepAlive {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	var start *log.Event
	var ready bool
	for _, e := range rec.snapshot() {
		assert.Equal(t, "conn-1", e.ConnectionID)
		if e.Message != nil && e.Message.Type == wire.TypeStart {
			start = &e
		}
		if e.StateChange != nil && e.StateChange.NewState == StateReady.String() {
			ready = true
		}
	}
	assert.True(t, ready)
	require.NotNil(t, start)
	assert.Equal(t, log.DirectionOut, start.Direction)
	assert.Equal(t, "a", start.SubscriptionID)
	assert.NotContains(t, start.Message.Payload, "da2-test")
	assert.Contains(t, start.Message.Payload, redacted)

	// The wire still carries the key.
	sent, err := srv.sentOf(wire.TypeStart)[0].Start()
	require.NoError(t, err)
	assert.Equal(t, "da2-test", sent.Extensions.Authorization[auth.HeaderAPIKey])
}
