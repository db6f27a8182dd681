package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed channel or subscription.
	ErrClosed = errors.New("realtime: channel closed")
	// ErrSendQueueFull means the outbound queue is saturated.
	ErrSendQueueFull = errors.New("realtime: send queue full")
)

// Event is one inbound named event.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Name)
	}
	return json.Unmarshal(e.Data, v)
}

// Subscription delivers events for the names it was created with.
type Subscription interface {
	Events() <-chan Event
	Done() <-chan struct{}
	Cancel() error
}

// Channel is a persistent duplex event channel to the chat server.
type Channel interface {
	// Subscribe registers interest in the named events. Events are delivered in
	// arrival order until the subscription is cancelled.
	Subscribe(ctx context.Context, events ...string) (Subscription, error)
	// Emit enqueues an outbound event. It does not wait for delivery.
	Emit(ctx context.Context, event string, payload any) error
}

// Envelope is the wire frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// decode splits a frame into envelopes. Gateways batch queued frames into one
// websocket message separated by newlines.
func decode(frame []byte) ([]Event, error) {
	var (
		out  []Event
		errs []error
	)
	for _, line := range bytes.Split(frame, newline) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			errs = append(errs, err)
			continue
		}
		if env.Event == "" {
			errs = append(errs, errors.New("envelope without event name"))
			continue
		}
		out = append(out, Event{Name: env.Event, Data: env.Data})
	}
	return out, errors.Join(errs...)
}

var newline = []byte{'\n'}
