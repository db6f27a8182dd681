package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mahaj/logchat/pkg/realtime"
)

// Emitted is one event recorded by Channel.
type Emitted struct {
	Event   string
	Payload any
}

// Channel is an in-memory realtime.Channel. Inbound events are injected with
// Deliver; outbound events are recorded.
type Channel struct {
	Router *realtime.Router

	mu           sync.Mutex
	emitted      []Emitted
	EmitErr      map[string]error
	SubscribeErr error
	// BeforeSubscribe, when set, runs at the start of Subscribe. Tests use it
	// to hold a subscription in flight.
	BeforeSubscribe func()
}

func NewChannel() *Channel {
	return &Channel{Router: realtime.NewRouter(), EmitErr: make(map[string]error)}
}

func (c *Channel) Subscribe(_ context.Context, events ...string) (realtime.Subscription, error) {
	if c.BeforeSubscribe != nil {
		c.BeforeSubscribe()
	}
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	return c.Router.Add(events...)
}

func (c *Channel) Emit(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.EmitErr[event]; err != nil {
		return err
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

// FailEmit makes every later Emit of event return err.
func (c *Channel) FailEmit(event string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EmitErr[event] = err
}

// Emitted returns the recorded outbound events in order.
func (c *Channel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Emitted, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// Names returns the recorded outbound event names in order.
func (c *Channel) Names() []string {
	var names []string
	for _, e := range c.Emitted() {
		names = append(names, e.Event)
	}
	return names
}

// Deliver encodes payload and dispatches it as an inbound event. It returns
// the number of subscriptions that received it.
func (c *Channel) Deliver(event string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return c.Router.Dispatch(realtime.Event{Name: event, Data: data})
}
