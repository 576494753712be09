// Package nop provides the publisher used when turn events are disabled.
package nop

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/logger"
)

// Publisher discards turn events, noting each one at debug level.
type Publisher struct {
	logger *slog.Logger
}

// NewPublisher creates a new no-op eventstream publisher. A nil logger is
// replaced with logger.Nop.
func NewPublisher(l *slog.Logger) *Publisher {
	if l == nil {
		l = logger.Nop()
	}
	return &Publisher{logger: l}
}

// PublishTurn validates input and otherwise drops the event.
func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	p.logger.Debug("turn event not published, events disabled",
		"conversation_id", event.ConversationID,
		"outcome", string(event.Outcome),
	)
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
