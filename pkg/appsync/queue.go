package appsync

import (
	"context"
	"sync"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// messageQueue is an unbounded FIFO with a single consumer. push never
// blocks, so the read loop is never held up by a slow consumer.
type messageQueue struct {
	mu     sync.Mutex
	items  []*wire.Message
	closed bool
	notify chan struct{}
}

func newMessageQueue() *messageQueue {
	return &messageQueue{notify: make(chan struct{}, 1)}
}

// push appends msg. Messages pushed after close are dropped.
func (q *messageQueue) push(msg *wire.Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *messageQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *messageQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the oldest message, blocking until one arrives. Once closed
// and empty it returns ErrSubscriptionClosed.
func (q *messageQueue) pop(ctx context.Context) (*wire.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *messageQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
