// Package fakeappsync provides an in-process AppSync realtime endpoint for
// tests. It speaks the graphql-ws protocol over a real WebSocket.
package fakeappsync

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Config configures a Server.
type Config struct {
	// APIKey is the accepted key. An init on a connection whose header
	// parameter carries another key gets connection_error.
	APIKey string

	// ConnectionTimeout is announced in connection_ack (default: 5m).
	ConnectionTimeout time.Duration

	// KeepAliveEvery is the ka period (default: no keep-alives).
	KeepAliveEvery time.Duration

	// SilentStop leaves stop unanswered.
	SilentStop bool
}

// Server is a fake AppSync realtime endpoint.
type Server struct {
	config Config
	http   *httptest.Server

	mu       sync.Mutex
	conns    map[*conn]struct{}
	received []*wire.Message
	wg       sync.WaitGroup
}

// New starts a server.
func New(config Config) *Server {
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 5 * time.Minute
	}
	s := &Server{
		config: config,
		conns:  make(map[*conn]struct{}),
	}
	s.http = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Endpoint returns the GraphQL endpoint URL clients should be given.
func (s *Server) Endpoint() string {
	return s.http.URL + "/graphql"
}

// Close drops every connection and stops the server.
func (s *Server) Close() {
	s.CloseConnections(websocket.CloseGoingAway)
	s.http.Close()
	s.wg.Wait()
}

// CloseConnections closes every open connection with code.
func (s *Server) CloseConnections(code int) {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(code)
	}
}

// Received returns the messages received from clients so far.
func (s *Server) Received() []*wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// ReceivedOf returns the received messages of type typ.
func (s *Server) ReceivedOf(typ wire.MessageType) []*wire.Message {
	var out []*wire.Message
	for _, m := range s.Received() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// Subscriptions returns the ids of the active subscriptions on all
// connections, sorted.
func (s *Server) Subscriptions() []string {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var ids []string
	for _, c := range conns {
		ids = append(ids, c.subscriptionIDs()...)
	}
	slices.Sort(ids)
	return ids
}

// Publish sends data to every active subscription and returns the number
// of messages sent.
func (s *Server) Publish(data any) int {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	n := 0
	for _, c := range conns {
		for _, id := range c.subscriptionIDs() {
			if c.send(wire.TypeData, id, map[string]any{"data": data}) == nil {
				n++
			}
		}
	}
	return n
}

// PublishTo sends data to the subscription with id. It reports whether the
// subscription was found.
func (s *Server) PublishTo(id string, data any) bool {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if slices.Contains(c.subscriptionIDs(), id) {
			return c.send(wire.TypeData, id, map[string]any{"data": data}) == nil
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"graphql-ws"},
	CheckOrigin:  func(*http.Request) bool { return true },
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{
		server: s,
		ws:     ws,
		apiKey: apiKeyOf(r),
		subs:   make(map[string]struct{}),
		quit:   make(chan struct{}),
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	c.run()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) record(msg *wire.Message) {
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()
}

// apiKeyOf extracts x-api-key from the base64 JSON header parameter.
func apiKeyOf(r *http.Request) string {
	raw, err := base64.StdEncoding.DecodeString(r.URL.Query().Get("header"))
	if err != nil {
		return ""
	}
	var header map[string]string
	if err := json.Unmarshal(raw, &header); err != nil {
		return ""
	}
	return header[auth.HeaderAPIKey]
}
