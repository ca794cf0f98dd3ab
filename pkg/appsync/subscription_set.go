package appsync

import (
	"slices"
	"sync"
)

// subscriptionSet holds the subscriptions still owed a stop. Removal is the
// only way to claim that obligation, so whichever path removes a
// subscription first is the one that sends its stop.
//
// An id is reserved while its start is in flight, so no two starts share an
// id.
type subscriptionSet struct {
	mu       sync.Mutex
	subs     map[string]*Subscription
	reserved map[string]struct{}
	closed   bool
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{
		subs:     make(map[string]*Subscription),
		reserved: make(map[string]struct{}),
	}
}

// reserve claims id for a pending start. It fails once the set is drained
// or when the id is live or already reserved.
func (s *subscriptionSet) reserve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClientClosed
	}
	if _, ok := s.subs[id]; ok {
		return ErrSubscriptionExists
	}
	if _, ok := s.reserved[id]; ok {
		return ErrSubscriptionExists
	}
	s.reserved[id] = struct{}{}
	return nil
}

// release drops the reservation for id.
func (s *subscriptionSet) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, id)
}

// add promotes the reservation for sub's id to a live member. The
// reservation is consumed either way; add fails only once the set is
// drained.
func (s *subscriptionSet) add(sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reserved, sub.id)
	if s.closed {
		return ErrClientClosed
	}
	s.subs[sub.id] = sub
	return nil
}

// remove deletes sub if it is still the member for its id and reports
// whether this call removed it.
func (s *subscriptionSet) remove(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.subs[sub.id]; ok && cur == sub {
		delete(s.subs, sub.id)
		return true
	}
	return false
}

// removeID deletes the member for id and returns it.
func (s *subscriptionSet) removeID(id string) (*Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	return sub, ok
}

// drain empties the set and refuses further additions.
func (s *subscriptionSet) drain() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	clear(s.subs)
	return subs
}

func (s *subscriptionSet) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *subscriptionSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
