package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Defaults for WebSocketConfig.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultCloseTimeout     = 5 * time.Second
	DefaultReadLimit        = 1 << 20
)

// WebSocketConfig configures a WebSocketDialer.
type WebSocketConfig struct {
	// HandshakeTimeout bounds the opening handshake (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write (default: 10s).
	WriteTimeout time.Duration

	// CloseTimeout bounds the wait for the peer's close frame (default: 5s).
	CloseTimeout time.Duration

	// ReadLimit is the maximum inbound frame size in bytes (default: 1 MiB).
	ReadLimit int64

	// Header is sent with the opening handshake.
	Header http.Header

	// TLSClientConfig overrides the TLS settings for wss URLs.
	TLSClientConfig *tls.Config

	EnableCompression bool
}

func (c *WebSocketConfig) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
}

// WebSocketDialer opens WebSocket connections with gorilla/websocket.
type WebSocketDialer struct {
	config WebSocketConfig
}

// NewWebSocketDialer creates a dialer. Zero config fields take defaults.
func NewWebSocketDialer(config WebSocketConfig) *WebSocketDialer {
	config.applyDefaults()
	return &WebSocketDialer{config: config}
}

// Dial opens a connection and starts its read loop. When subprotocol is set
// the server must select it, otherwise Dial fails with
// ErrSubprotocolMismatch.
func (d *WebSocketDialer) Dial(ctx context.Context, url, subprotocol string, handler Handler) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  d.config.HandshakeTimeout,
		TLSClientConfig:   d.config.TLSClientConfig,
		EnableCompression: d.config.EnableCompression,
	}
	if subprotocol != "" {
		dialer.Subprotocols = []string{subprotocol}
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	if subprotocol != "" && ws.Subprotocol() != subprotocol {
		ws.Close()
		return nil, fmt.Errorf("%w: want %q, got %q", ErrSubprotocolMismatch, subprotocol, ws.Subprotocol())
	}

	ws.SetReadLimit(d.config.ReadLimit)

	c := &WebSocketConn{
		ws:      ws,
		handler: handler,
		config:  d.config,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// WebSocketConn is an open WebSocket connection.
type WebSocketConn struct {
	ws      *websocket.Conn
	handler Handler
	config  WebSocketConfig

	writeMu   sync.Mutex
	closing   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func (c *WebSocketConn) readLoop() {
	defer close(c.done)

	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			code, reason := closeStatus(err)
			if !c.closing.Load() && !websocket.IsCloseError(err, CloseNormalClosure, CloseGoingAway) {
				c.handler.OnError(err)
			}
			c.handler.OnClose(code, reason)
			return
		}
		c.handler.OnMessage(FrameType(frameType), data)
	}
}

func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return CloseAbnormalClosure, err.Error()
}

// Send writes data as one text frame.
func (c *WebSocketConn) Send(data []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Close sends a close frame, waits up to CloseTimeout for the peer to
// answer, then closes the socket and waits for the read loop to exit.
func (c *WebSocketConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		if !c.closed.Load() {
			msg := websocket.FormatCloseMessage(code, reason)
			deadline := time.Now().Add(c.config.WriteTimeout)
			if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
				err = fmt.Errorf("write close frame: %w", werr)
			} else {
				timer := time.NewTimer(c.config.CloseTimeout)
				select {
				case <-c.done:
				case <-timer.C:
				}
				timer.Stop()
			}
		}

		if cerr := c.ws.Close(); cerr != nil && err == nil && !c.closed.Load() {
			err = cerr
		}
		<-c.done
		c.closed.Store(true)
	})
	return err
}

// IsClosed reports whether Close was called or the read loop ended.
func (c *WebSocketConn) IsClosed() bool {
	return c.closing.Load() || c.closed.Load()
}

// Done is closed once the read loop has exited.
func (c *WebSocketConn) Done() <-chan struct{} {
	return c.done
}

// Subprotocol returns the negotiated sub-protocol.
func (c *WebSocketConn) Subprotocol() string {
	return c.ws.Subprotocol()
}
