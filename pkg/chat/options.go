package chat

import (
	"io"
	"log/slog"
	"time"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// DefaultUserID identifies the sender when no user ID is configured.
const DefaultUserID = "anonymous"

// Option configures a Controller created with NewController.
type Option func(*Controller)

// WithUserID sets the userId sent with every message.
func WithUserID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.userID = id
		}
	}
}

// WithTimeout bounds each submission. An expired deadline ends the
// submission the same way Stop does. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithPreviews sets the store that image attachments acquire preview
// handles from. Without one, attachments carry no preview.
func WithPreviews(p *attachment.Previews) Option {
	return func(c *Controller) {
		c.previews = p
	}
}

// WithPublisher sets where a turn event is sent after each submission.
func WithPublisher(p eventstream.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStreamDump copies every raw response byte to w.
func WithStreamDump(w io.Writer) Option {
	return func(c *Controller) {
		c.dump = w
	}
}

// WithConversationID resumes an existing conversation instead of starting
// a new one. Reset still starts a new conversation with a fresh ID.
func WithConversationID(id string) Option {
	return func(c *Controller) {
		c.conversationID = id
	}
}

// WithInitialMessages seeds the conversation with earlier messages, for
// example the history of a resumed conversation. Reset discards them.
func WithInitialMessages(msgs ...Message) Option {
	return func(c *Controller) {
		c.initialMessages = append(c.initialMessages, msgs...)
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
