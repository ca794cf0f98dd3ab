package appsync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jdfoster/appsync-realtime-util/pkg/log"
	"github.com/jdfoster/appsync-realtime-util/pkg/mediator"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	id string
}

// WithID sets the subscription id instead of generating a UUID.
func WithID(id string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.id = id
	}
}

// Subscription is one active GraphQL subscription. Its data messages are
// read with Next or All by a single consumer.
type Subscription struct {
	id      string
	request wire.GraphQLRequest
	client  *Client
	handle  mediator.Handle
	queue   *messageQueue

	active     atomic.Bool
	finishOnce sync.Once
}

func newSubscription(c *Client, id string, req wire.GraphQLRequest) *Subscription {
	return &Subscription{
		id:      id,
		request: req,
		client:  c,
		queue:   newMessageQueue(),
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Query returns the GraphQL query.
func (s *Subscription) Query() string {
	return s.request.Query
}

// Variables returns a copy of the query variables.
func (s *Subscription) Variables() map[string]any {
	return maps.Clone(s.request.Variables)
}

// deliver is the data listener. Every subscription sees every data message
// and keeps its own.
func (s *Subscription) deliver(msg *wire.Message) {
	if msg.ID != s.id {
		return
	}
	s.queue.push(msg)
}

// finish detaches the data listener and ends the sequence.
func (s *Subscription) finish(reason string) {
	s.finishOnce.Do(func() {
		s.client.bus.Off(s.handle)
		s.queue.close()
		old := "PENDING"
		if s.active.Load() {
			old = "ACTIVE"
		}
		s.client.logState(log.StateEntitySubscription, s.id, old, "ENDED", reason)
	})
}

// Next returns the next data message, blocking until one arrives.
// It returns ErrSubscriptionClosed once the subscription has ended and every
// received message has been consumed.
func (s *Subscription) Next(ctx context.Context) (*wire.Message, error) {
	return s.queue.pop(ctx)
}

// Buffered returns the number of received messages not yet consumed.
func (s *Subscription) Buffered() int {
	return s.queue.len()
}

// All returns the data messages as a sequence. Leaving the loop early, or
// cancelling ctx, closes the subscription. A ctx error is yielded once as the
// final element.
func (s *Subscription) All(ctx context.Context) iter.Seq2[*wire.Message, error] {
	return func(yield func(*wire.Message, error) bool) {
		defer func() {
			if err := s.Close(context.WithoutCancel(ctx)); err != nil {
				s.client.logger.Warn("Failed to stop subscription", "id", s.id, "error", err)
			}
		}()

		for {
			msg, err := s.Next(ctx)
			if errors.Is(err, ErrSubscriptionClosed) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Close ends the subscription. If it is still live, a stop is sent and its
// complete awaited. Close is idempotent and a no-op after client teardown.
func (s *Subscription) Close(ctx context.Context) error {
	s.finish("closed by consumer")
	if !s.client.subs.remove(s) {
		return nil
	}
	return s.client.unsubscribe(ctx, s.id)
}

// Subscribe starts a subscription and waits for the server to acknowledge it.
// The returned Subscription yields every data message carrying its id.
// On timeout or server error nothing is registered.
func (c *Client) Subscribe(ctx context.Context, query string, variables map[string]any, opts ...SubscribeOption) (*Subscription, error) {
	if c.Aborted() {
		return nil, ErrClientClosed
	}

	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	id := o.id
	if id == "" {
		id = uuid.NewString()
	}
	// The id stays reserved until the start settles, so a concurrent
	// Subscribe with the same id fails here instead of sending its own start.
	if err := c.subs.reserve(id); err != nil {
		if errors.Is(err, ErrSubscriptionExists) {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		return nil, err
	}

	headers, err := c.headers()
	if err != nil {
		c.subs.release(id)
		c.fail(err, "subscribe")
		return nil, err
	}

	req := wire.GraphQLRequest{Query: query, Variables: variables}
	start, err := wire.NewStart(id, req, headers)
	if err != nil {
		c.subs.release(id)
		return nil, err
	}

	// The data listener is attached before start so nothing sent right after
	// start_ack is missed.
	sub := newSubscription(c, id, req)
	sub.handle = c.bus.On(mediator.KeyOf(wire.TypeData), sub.deliver)

	if err := c.submit(ctx, start, resolveOn(wire.TypeStartAck, id)); err != nil {
		c.subs.release(id)
		sub.finish("start failed")
		return nil, err
	}

	sub.active.Store(true)
	if err := c.subs.add(sub); err != nil {
		// Only a drained set refuses the promotion. Teardown never saw this
		// subscription, so its stop is owed here.
		sub.finish("start raced teardown")
		stopCtx, cancel := c.stopContext(ctx)
		defer cancel()
		if stopErr := c.unsubscribe(stopCtx, id); stopErr != nil {
			c.logger.Debug("Stop after teardown race failed", "id", id, "error", stopErr)
		}
		return nil, err
	}

	c.logger.Debug("Subscription started", "id", id)
	c.logState(log.StateEntitySubscription, id, "PENDING", "ACTIVE", "")
	return sub, nil
}

// Unsubscribe stops the live subscription with the given id and waits for
// the server's complete.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	sub, ok := c.subs.removeID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	sub.finish("unsubscribed")
	return c.unsubscribe(ctx, id)
}

// unsubscribe runs the stop/complete exchange. Callers must have removed id
// from the live set.
func (c *Client) unsubscribe(ctx context.Context, id string) error {
	err := c.submit(ctx, wire.NewStop(id), resolveOn(wire.TypeComplete, id))
	if err != nil {
		return fmt.Errorf("stop %s: %w", id, err)
	}
	c.logger.Debug("Subscription stopped", "id", id)
	return nil
}

// Subscriptions returns the ids of the live subscriptions, sorted.
func (c *Client) Subscriptions() []string {
	return c.subs.ids()
}
