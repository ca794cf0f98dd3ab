// Package mediator is the in-process event bus between the client's
// components. Every outbound request and inbound response is published on
// it, keyed by its message type plus one of the Request/Response
// pseudo-keys. Listeners are scoped to a single pending exchange and are
// registered and removed around it.
package mediator

import (
	"sync"

	"github.com/jdfoster/appsync-realtime-util/pkg/wire"
)

// Key selects which messages a listener receives.
type Key string

const (
	// KeyRequest receives every outbound request.
	KeyRequest Key = "request"
	// KeyResponse receives every inbound response.
	KeyResponse Key = "response"
)

// KeyOf returns the key for a single message type.
func KeyOf(t wire.MessageType) Key {
	return Key(t)
}

// Listener handles a published message. Listeners run synchronously on the
// publishing goroutine and must not block.
type Listener func(msg *wire.Message)

// Handle identifies a registration for Off.
type Handle struct {
	key Key
	id  uint64
}

type entry struct {
	id uint64
	fn Listener
}

// Mediator is a registry of listeners keyed by message type.
// It is safe for concurrent use.
type Mediator struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[Key][]entry
}

// New creates an empty Mediator.
func New() *Mediator {
	return &Mediator{listeners: make(map[Key][]entry)}
}

// On registers fn for key. It only observes messages emitted after On returns.
func (m *Mediator) On(key Key, fn Listener) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.listeners[key] = append(m.listeners[key], entry{id: m.nextID, fn: fn})
	return Handle{key: key, id: m.nextID}
}

// Off removes a registration. Removing twice is a no-op.
func (m *Mediator) Off(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.listeners[h.key]
	for i, e := range entries {
		if e.id != h.id {
			continue
		}
		remaining := make([]entry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(m.listeners, h.key)
		} else {
			m.listeners[h.key] = remaining
		}
		return
	}
}

// Emit delivers msg to the listeners of key in registration order.
// The listener set is captured before delivery, so listeners may call On
// and Off freely.
func (m *Mediator) Emit(key Key, msg *wire.Message) {
	m.mu.Lock()
	snapshot := m.listeners[key]
	m.mu.Unlock()

	for _, e := range snapshot {
		e.fn(msg)
	}
}

// Clear removes every listener.
func (m *Mediator) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = make(map[Key][]entry)
}

// Count returns the number of listeners registered for key.
func (m *Mediator) Count(key Key) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners[key])
}

// Len returns the total number of registered listeners.
func (m *Mediator) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, entries := range m.listeners {
		n += len(entries)
	}
	return n
}
