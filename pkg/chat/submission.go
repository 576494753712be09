package chat

import (
	"context"
	"time"

	"github.com/papercomputeco/ragchat/pkg/dispatch"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
)

// Submission is the handle for one submitted message and its streamed
// reply. It owns the token that cancels the request.
type Submission struct {
	UserMessageID      string
	AssistantMessageID string

	token     *dispatch.CancelToken
	release   context.CancelFunc
	startedAt time.Time
	done      chan struct{}

	// Written by the submission goroutine only, before done is closed.
	outcome    eventstream.Outcome
	err        error
	streamErr  string
	httpStatus int
	sawEnd     bool
}

// Done is closed when the submission has finished.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission has finished and returns the error
// that ended it. Cancellation is not an error.
func (s *Submission) Wait() error {
	<-s.done
	return s.err
}

// Outcome blocks until the submission has finished and reports how it
// ended.
func (s *Submission) Outcome() eventstream.Outcome {
	<-s.done
	return s.outcome
}
