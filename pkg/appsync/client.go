package appsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jdfoster/appsync-realtime-util/pkg/auth"
	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/mediator"
	"github.com/jdfoster/appsync-realtime-util/pkg/transport"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// DefaultTimeout bounds every correlated exchange unless Config.Timeout is set.
const DefaultTimeout = 15 * time.Second

// Config configures a Client.
type Config struct {
	// Endpoint is the GraphQL endpoint, e.g.
	// https://xxx.appsync-api.eu-west-1.amazonaws.com/graphql.
	Endpoint string

	// Credential authorizes the connection and every subscription.
	Credential auth.Credential

	// Timeout bounds the handshake, subscribe and unsubscribe exchanges
	// (default: 15s). Negative disables the timeout, except for the stops
	// sent during teardown, which are still bounded by DefaultTimeout.
	Timeout time.Duration

	// Dialer opens the socket (default: transport.WebSocketDialer).
	Dialer transport.Dialer

	// Logger is used for diagnostic logging. If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives a trace of every protocol event. If nil,
	// protocol logging is disabled.
	ProtocolLogger log.Logger

	// ConnectionID labels protocol log events (default: random UUID).
	ConnectionID string

	// Now returns the time used for x-amz-date (default: time.Now).
	Now func() time.Time
}

// Client is a realtime subscription client over one WebSocket. A Client
// connects once; after cancellation it is permanently closed.
type Client struct {
	config   Config
	endpoint *url.URL
	logger   *slog.Logger
	plog     log.Logger

	bus       *mediator.Mediator
	subs      *subscriptionSet
	keepAlive *watchdog

	// stopTimeout bounds stops that no caller waits on.
	stopTimeout time.Duration

	state atomic.Int32

	mu            sync.RWMutex
	conn          transport.Conn
	realtimeHost  string
	transportDone chan struct{}
	transportOnce sync.Once

	ctx          context.Context
	cancel       context.CancelCauseFunc
	teardownOnce sync.Once
	done         chan struct{}
}

// New creates a client. Cancelling ctx cancels the client.
func New(ctx context.Context, config Config) (*Client, error) {
	endpoint, err := parseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}
	if config.Credential == nil {
		return nil, fmt.Errorf("%w: credential is required", ErrInvalidConfig)
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Dialer == nil {
		config.Dialer = transport.NewWebSocketDialer(transport.WebSocketConfig{})
	}
	if config.ConnectionID == "" {
		config.ConnectionID = uuid.NewString()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		config:        config,
		endpoint:      endpoint,
		logger:        logger.With("conn_id", config.ConnectionID),
		plog:          config.ProtocolLogger,
		bus:           mediator.New(),
		subs:          newSubscriptionSet(),
		transportDone: make(chan struct{}),
		done:          make(chan struct{}),
	}
	c.stopTimeout = config.Timeout
	if c.stopTimeout < 0 {
		c.stopTimeout = DefaultTimeout
	}
	c.state.Store(int32(StateDisconnected))
	c.keepAlive = newWatchdog(func() {
		c.fail(ErrKeepAliveTimeout, "keep-alive")
	})

	c.ctx, c.cancel = context.WithCancelCause(ctx)
	context.AfterFunc(c.ctx, c.teardown)

	return c, nil
}

// Connect opens the socket and performs the connection_init handshake.
// A failure to open the socket cancels the client; a handshake timeout or
// connection_error only fails the call.
func (c *Client) Connect(ctx context.Context) error {
	if c.Aborted() {
		return ErrClientClosed
	}
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.logState(log.StateEntityConnection, "", StateDisconnected.String(), StateConnecting.String(), "")

	if err := c.dial(ctx); err != nil {
		return err
	}
	if err := c.handshake(ctx); err != nil {
		return err
	}

	if c.state.CompareAndSwap(int32(StateConnecting), int32(StateReady)) {
		c.logState(log.StateEntityConnection, "", StateConnecting.String(), StateReady.String(), "")
	}
	c.logger.Info("Connected", "host", c.realtimeHost, "keepalive", c.KeepAliveInterval())
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	headers, err := c.headers()
	if err != nil {
		c.fail(err, "connect")
		return err
	}
	addr, err := RealtimeURL(c.endpoint, headers)
	if err != nil {
		c.fail(err, "connect")
		return err
	}

	conn, err := c.config.Dialer.Dial(ctx, addr.String(), Subprotocol, connHandler{c})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		c.fail(err, "dial")
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.realtimeHost = addr.Host
	c.mu.Unlock()

	// Teardown may have run before conn was published.
	if c.Aborted() {
		_ = conn.Close(transport.CloseNormalClosure, "")
		return ErrClientClosed
	}
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	onAck := listenerBuilder{
		key: mediator.KeyOf(wire.TypeConnectionAck),
		build: func(p *pending) mediator.Listener {
			return func(msg *wire.Message) {
				ack, err := msg.ConnectionAck()
				if err != nil {
					p.reject(fmt.Errorf("%w: %w", ErrServerRejected, err))
					return
				}
				if ack.ConnectionTimeoutMs <= 0 {
					p.reject(fmt.Errorf("%w: connectionTimeoutMs=%d", ErrNoKeepAliveInterval, ack.ConnectionTimeoutMs))
					return
				}
				// Armed here, on the read loop, so a ka right behind the ack
				// already finds the interval.
				if err := c.keepAlive.arm(ack.ConnectionTimeout()); err != nil {
					p.reject(err)
					return
				}
				p.resolve()
			}
		},
	}
	onError := listenerBuilder{
		key: mediator.KeyOf(wire.TypeConnectionError),
		build: func(p *pending) mediator.Listener {
			return func(msg *wire.Message) {
				p.reject(newServerError(msg))
			}
		},
	}

	if err := c.submit(ctx, wire.NewConnectionInit(), onAck, onError); err != nil {
		c.logger.Warn("Handshake failed", "error", err)
		return err
	}
	return nil
}

func (c *Client) headers() (map[string]string, error) {
	return auth.Headers(c.config.Credential, c.endpoint.Host, c.config.Now())
}

// send publishes req on the mediator and writes it to the transport.
func (c *Client) send(req *wire.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNoConnection
	}

	data, err := wire.Encode(req)
	if err != nil {
		return err
	}

	c.logMessage(log.DirectionOut, req)
	c.bus.Emit(mediator.KeyOf(req.Type), req)
	c.bus.Emit(mediator.KeyRequest, req)

	if err := conn.Send(data); err != nil {
		c.logError(log.LayerTransport, err, "send "+req.Type.String(), nil)
		return fmt.Errorf("send %s: %w", req.Type, err)
	}
	return nil
}

// receive handles one inbound text frame.
func (c *Client) receive(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		c.logger.Debug("Discarding malformed frame", "error", err)
		c.logFrame(data, false)
		return
	}
	if !wire.IsResponse(msg) {
		c.logger.Debug("Discarding non-response message", "type", msg.Type)
		c.logFrame(data, false)
		return
	}

	c.logMessage(log.DirectionIn, msg)

	if msg.Type == wire.TypeKeepAlive {
		if err := c.keepAlive.reset(); err != nil {
			c.fail(err, "keep-alive")
			return
		}
	}

	c.bus.Emit(mediator.KeyOf(msg.Type), msg)
	c.bus.Emit(mediator.KeyResponse, msg)
}

// fail records a fatal error and triggers cancellation.
func (c *Client) fail(err error, context string) {
	if c.Aborted() {
		return
	}
	c.logger.Error("Fatal error, cancelling", "context", context, "error", err)
	c.logError(log.LayerClient, err, context, nil)
	c.cancel(err)
}

func (c *Client) signalTransportDone() {
	c.transportOnce.Do(func() {
		close(c.transportDone)
	})
}

// teardown runs once, on its own goroutine, after cancellation.
func (c *Client) teardown() {
	c.teardownOnce.Do(func() {
		cause := context.Cause(c.ctx)
		old := State(c.state.Swap(int32(StateClosing)))
		c.logState(log.StateEntityConnection, "", old.String(), StateClosing.String(), cause.Error())
		c.logger.Info("Shutting down", "cause", cause)

		c.keepAlive.stop()
		subs := c.subs.drain()

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn != nil && !conn.IsClosed() {
			c.stopAll(subs)
		}

		c.bus.Clear()
		if conn != nil {
			if err := conn.Close(transport.CloseNormalClosure, "client shutdown"); err != nil {
				c.logger.Debug("Transport close failed", "error", err)
			}
		}
		c.signalTransportDone()

		for _, sub := range subs {
			sub.finish("connection closed")
		}

		c.state.Store(int32(StateClosed))
		c.logState(log.StateEntityConnection, "", StateClosing.String(), StateClosed.String(), "teardown complete")
		c.logger.Info("Shutdown complete")
		close(c.done)
	})
}

// stopContext returns the context for a stop nobody waits on. It ends after
// stopTimeout even when Config.Timeout is disabled.
func (c *Client) stopContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), c.stopTimeout)
}

// stopAll sends a best-effort stop for every drained subscription
// concurrently and waits for all of them to settle.
func (c *Client) stopAll(subs []*Subscription) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ctx, cancel := c.stopContext(context.Background())
			defer cancel()
			if err := c.unsubscribe(ctx, id); err != nil {
				c.logger.Warn("Best-effort stop failed", "id", id, "error", err)
				c.logError(log.LayerClient, err, "teardown stop "+id, nil)
			}
		}(sub.id)
	}
	wg.Wait()
}

// Cancel triggers teardown. It returns immediately; wait on Done.
func (c *Client) Cancel() {
	c.cancel(ErrClientClosed)
}

// Shutdown cancels the client and waits for teardown to complete or ctx to
// end.
func (c *Client) Shutdown(ctx context.Context) error {
	c.Cancel()
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed after teardown has fully completed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Aborted reports whether cancellation has been triggered.
func (c *Client) Aborted() bool {
	return c.ctx.Err() != nil
}

// Err returns the cause of cancellation, or nil while the client is live.
func (c *Client) Err() error {
	if !c.Aborted() {
		return nil
	}
	return context.Cause(c.ctx)
}

// State returns the connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// KeepAliveInterval returns the interval from connection_ack, or zero before
// the handshake.
func (c *Client) KeepAliveInterval() time.Duration {
	return c.keepAlive.currentInterval()
}

// ConnectionID returns the id labelling this client's protocol log events.
func (c *Client) ConnectionID() string {
	return c.config.ConnectionID
}

// OnRequest registers fn to observe every outbound request. The returned
// func detaches it. Observers are dropped at teardown.
func (c *Client) OnRequest(fn func(*wire.Message)) func() {
	h := c.bus.On(mediator.KeyRequest, fn)
	return func() { c.bus.Off(h) }
}

// OnResponse registers fn to observe every inbound response. The returned
// func detaches it. Observers are dropped at teardown.
func (c *Client) OnResponse(fn func(*wire.Message)) func() {
	h := c.bus.On(mediator.KeyResponse, fn)
	return func() { c.bus.Off(h) }
}

// connHandler adapts the client to transport.Handler.
type connHandler struct {
	c *Client
}

func (h connHandler) OnMessage(frameType transport.FrameType, data []byte) {
	if frameType != transport.TextFrame {
		h.c.logger.Debug("Discarding non-text frame", "type", frameType)
		h.c.logFrame(data, true)
		return
	}
	h.c.receive(data)
}

func (h connHandler) OnClose(code int, reason string) {
	h.c.logger.Debug("Transport closed", "code", code, "reason", reason)
	h.c.signalTransportDone()
	if !h.c.Aborted() {
		h.c.logError(log.LayerTransport, ErrConnectionClosed, "transport", &code)
	}
	h.c.cancel(fmt.Errorf("%w: code %d %s", ErrConnectionClosed, code, reason))
}

func (h connHandler) OnError(err error) {
	h.c.logger.Warn("Transport error", "error", err)
	h.c.logError(log.LayerTransport, err, "read", nil)
}

var _ transport.Handler = connHandler{}
