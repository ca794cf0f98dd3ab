package appsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jdfoster/appsync-realtime-util/pkg/mediator"
	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// pending is the result cell of one correlated exchange. It settles once.
type pending struct {
	once sync.Once
	done chan struct{}
	err  error

	mu        sync.Mutex
	untargets []string
}

func newPending() *pending {
	return &pending{done: make(chan struct{})}
}

func (p *pending) resolve() {
	p.settle(nil)
}

func (p *pending) reject(err error) {
	p.settle(err)
}

func (p *pending) settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// collect records an untargeted error for the timeout description.
func (p *pending) collect(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.untargets = append(p.untargets, text)
}

func (p *pending) collected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.untargets...)
}

// listenerBuilder produces a listener bound to one exchange's result cell.
type listenerBuilder struct {
	key   mediator.Key
	build func(p *pending) mediator.Listener
}

// resolveOn builds a listener resolving the exchange on a message of type
// typ carrying id.
func resolveOn(typ wire.MessageType, id string) listenerBuilder {
	return listenerBuilder{
		key: mediator.KeyOf(typ),
		build: func(p *pending) mediator.Listener {
			return func(msg *wire.Message) {
				if msg.ID == id {
					p.resolve()
				}
			}
		},
	}
}

// errorListener rejects on an error targeted at id and collects untargeted
// ones. Requests without an id only collect.
func errorListener(id string, p *pending) mediator.Listener {
	return func(msg *wire.Message) {
		switch {
		case msg.ID == "":
			p.collect(msg.ErrorText())
		case id != "" && msg.ID == id:
			p.reject(newServerError(msg))
		}
	}
}

// submit sends req and waits for one of the builders' listeners to settle
// the exchange. Every listener registered here is removed before return.
func (c *Client) submit(ctx context.Context, req *wire.Message, builders ...listenerBuilder) error {
	p := newPending()

	handles := make([]mediator.Handle, 0, len(builders)+1)
	defer func() {
		for _, h := range handles {
			c.bus.Off(h)
		}
	}()
	for _, b := range builders {
		handles = append(handles, c.bus.On(b.key, b.build(p)))
	}
	handles = append(handles, c.bus.On(mediator.KeyOf(wire.TypeError), errorListener(req.ID, p)))

	if err := c.send(req); err != nil {
		if errors.Is(err, ErrNoConnection) {
			c.fail(err, "send "+req.Type.String())
		}
		return err
	}

	var timeout <-chan time.Time
	if c.config.Timeout > 0 {
		timer := time.NewTimer(c.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.done:
		return p.err
	case <-timeout:
		return &TimeoutError{Op: req.Type, Errors: p.collected()}
	case <-ctx.Done():
		return ctx.Err()
	case <-c.transportDone:
		// A settle racing the close still wins.
		select {
		case <-p.done:
			return p.err
		default:
		}
		return ErrConnectionClosed
	}
}
