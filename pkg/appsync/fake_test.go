package appsync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/transport"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

const testEndpoint = "https://example.appsync-api.eu-west-1.amazonaws.com/graphql"

// fakeServer is an in-memory Dialer that answers like AppSync. By default
// connection_init gets connection_ack, start gets start_ack and stop gets
// complete. Entries in override replace the default for a message type.
type fakeServer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	sent     []*wire.Message
	urls     []string
	override map[wire.MessageType]func(c *fakeConn, msg *wire.Message)

	// keepAliveMs is announced in connection_ack (default 300000).
	keepAliveMs int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		override:    make(map[wire.MessageType]func(*fakeConn, *wire.Message)),
		keepAliveMs: 300000,
	}
}

// on replaces the default answer for typ. A nil fn leaves it unanswered.
func (s *fakeServer) on(typ wire.MessageType, fn func(c *fakeConn, msg *wire.Message)) {
	if fn == nil {
		fn = func(*fakeConn, *wire.Message) {}
	}
	s.mu.Lock()
	s.override[typ] = fn
	s.mu.Unlock()
}

func (s *fakeServer) Dial(ctx context.Context, url, subprotocol string, handler transport.Handler) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &fakeConn{
		server:  s,
		handler: handler,
		inbox:   make(chan []byte, 256),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.urls = append(s.urls, url)
	s.mu.Unlock()

	go c.loop()
	return c, nil
}

func (s *fakeServer) receive(c *fakeConn, msg *wire.Message) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	fn, ok := s.override[msg.Type]
	keepAliveMs := s.keepAliveMs
	s.mu.Unlock()

	if ok {
		fn(c, msg)
		return
	}
	switch msg.Type {
	case wire.TypeConnectionInit:
		c.push(wire.TypeConnectionAck, "", map[string]int{"connectionTimeoutMs": keepAliveMs})
	case wire.TypeStart:
		c.push(wire.TypeStartAck, msg.ID, nil)
	case wire.TypeStop:
		c.push(wire.TypeComplete, msg.ID, nil)
	}
}

// conn returns the most recent connection.
func (s *fakeServer) conn() *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *fakeServer) dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// sentOf returns the messages of type typ received so far.
func (s *fakeServer) sentOf(typ wire.MessageType) []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*wire.Message
	for _, m := range s.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeServer) countSent(typ wire.MessageType, id string) int {
	n := 0
	for _, m := range s.sentOf(typ) {
		if m.ID == id {
			n++
		}
	}
	return n
}

// fakeConn delivers server messages to the handler on its own goroutine,
// in order, like a transport read loop.
type fakeConn struct {
	server  *fakeServer
	handler transport.Handler
	inbox   chan []byte
	quit    chan struct{}
	done    chan struct{}

	closed      atomic.Bool
	closeOnce   sync.Once
	closeCode   int
	closeReason string
	closedBy    string
}

func (c *fakeConn) loop() {
	defer close(c.done)
	for {
		select {
		case data := <-c.inbox:
			c.handler.OnMessage(transport.TextFrame, data)
		case <-c.quit:
			c.handler.OnClose(c.closeCode, c.closeReason)
			return
		}
	}
}

func (c *fakeConn) Send(data []byte) error {
	if c.closed.Load() {
		return transport.ErrConnectionClosed
	}
	msg, err := wire.Decode(data)
	if err != nil {
		return err
	}
	c.server.receive(c, msg)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.shutdown(code, reason, "client")
	<-c.done
	return nil
}

func (c *fakeConn) IsClosed() bool {
	return c.closed.Load()
}

// drop ends the connection from the server side.
func (c *fakeConn) drop(code int) {
	c.shutdown(code, "dropped", "server")
	<-c.done
}

func (c *fakeConn) shutdown(code int, reason, by string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closedBy = by
		c.closed.Store(true)
		close(c.quit)
	})
}

// push queues a server message.
func (c *fakeConn) push(typ wire.MessageType, id string, payload any) {
	msg := &wire.Message{Type: typ, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			panic(err)
		}
		msg.Payload = raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	c.pushRaw(data)
}

func (c *fakeConn) pushRaw(data []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.inbox <- data:
	case <-c.quit:
	}
}

// pushData queues a data message for id.
func (c *fakeConn) pushData(id string, data any) {
	c.push(wire.TypeData, id, map[string]any{"data": data})
}

// pushError queues an error message. An empty id makes it untargeted.
func (c *fakeConn) pushError(id, errorType, message string) {
	c.push(wire.TypeError, id, map[string]any{
		"errors": []map[string]string{{"errorType": errorType, "message": message}},
	})
}

type clientOption func(*Config)

func withTimeout(d time.Duration) clientOption {
	return func(c *Config) { c.Timeout = d }
}

func withCredential(cred auth.Credential) clientOption {
	return func(c *Config) { c.Credential = cred }
}

// newTestClient returns an unconnected client on srv. The client is shut
// down at the end of the test.
func newTestClient(t *testing.T, srv *fakeServer, opts ...clientOption) *Client {
	t.Helper()
	cfg := Config{
		Endpoint:   testEndpoint,
		Credential: auth.APIKey{Key: "da2-test"},
		Timeout:    2 * time.Second,
		Dialer:     srv,
		Now:        func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// connectedClient returns a client that has completed the handshake.
func connectedClient(t *testing.T, srv *fakeServer, opts ...clientOption) *Client {
	t.Helper()
	c := newTestClient(t, srv, opts...)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("teardown did not complete")
	}
}
