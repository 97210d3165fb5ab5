// Package ws is the WebSocket front-end of the delivery core: one
// connection equals one session, one sink, one read pump and one write
// pump.
package ws

import (
	"context"

	"messenger-lab/domain/event"
)

// Sink buffers events for one connection. Consume is called by the
// router's fan-out; the write pump drains the channel onto the wire.
// A full buffer drops the event instead of blocking the fan-out: the
// client recovers through its next history fetch.
type Sink struct {
	events chan event.DomainEvent
}

func NewSink(bufferSize int) *Sink {
	return &Sink{events: make(chan event.DomainEvent, bufferSize)}
}

func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Backpressure: the connection is not draining fast enough.
		return nil
	}
}

// Events exposes the drain side to the write pump.
func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}
