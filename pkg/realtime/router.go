package realtime

import (
	"sync"
)

// Router fans inbound events out to subscriptions by name. Delivery to a
// subscription blocks until it is read or the subscription is cancelled, so
// a slow consumer applies backpressure instead of losing events.
type Router struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

func NewRouter() *Router {
	return &Router{subs: make(map[*subscription]struct{})}
}

// Add registers a subscription for the named events.
func (r *Router) Add(events ...string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	s := &subscription{
		names:  make(map[string]struct{}, len(events)),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		router: r,
	}
	for _, name := range events {
		s.names[name] = struct{}{}
	}
	r.subs[s] = struct{}{}
	return s, nil
}

// Dispatch delivers e to every subscription interested in its name and
// reports how many received it.
func (r *Router) Dispatch(e Event) int {
	r.mu.RLock()
	targets := make([]*subscription, 0, len(r.subs))
	for s := range r.subs {
		if _, ok := s.names[e.Name]; ok {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, s := range targets {
		if s.deliver(e) {
			n++
		}
	}
	return n
}

// Names returns the union of event names with at least one subscriber.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for s := range r.subs {
		for name := range s.names {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out
}

// Close cancels every subscription and rejects new ones.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	subs := r.subs
	r.subs = make(map[*subscription]struct{})
	r.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

func (r *Router) remove(s *subscription) {
	r.mu.Lock()
	delete(r.subs, s)
	r.mu.Unlock()
}

type subscription struct {
	names  map[string]struct{}
	events chan Event
	done   chan struct{}
	once   sync.Once
	router *Router
}

func (s *subscription) Events() <-chan Event  { return s.events }
func (s *subscription) Done() <-chan struct{} { return s.done }

// Cancel unsubscribes. The events channel is left open; readers select on Done.
func (s *subscription) Cancel() error {
	s.router.remove(s)
	s.stop()
	return nil
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) deliver(e Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- e:
		return true
	case <-s.done:
		return false
	}
}
