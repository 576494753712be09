// Package memory provides a publisher that keeps turn events in memory. The
// chat REPL uses it to print a turn summary, and tests use it to inspect
// what a controller emitted.
package memory

import (
	"context"
	"sync"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// Publisher records every published event in order.
type Publisher struct {
	mu     sync.Mutex
	events []eventstream.TurnCompletedEvent
	closed bool
}

// NewPublisher creates an empty recording publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTurn stores a copy of event.
func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []eventstream.TurnCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]eventstream.TurnCompletedEvent(nil), p.events...)
}

// Last returns the most recent event and whether there was one.
func (p *Publisher) Last() (eventstream.TurnCompletedEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return eventstream.TurnCompletedEvent{}, false
	}
	return p.events[len(p.events)-1], true
}

// Closed reports whether Close was called.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close marks the publisher closed. Recorded events stay readable.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
