// Package chat holds the conversation state of a streaming chat client and
// the controller that drives it: submitting messages, applying the streamed
// reply event by event, stopping a reply midway and resetting the
// conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/dispatch"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/sse"
)

const publishTimeout = 5 * time.Second

// ErrStreamFailed is returned by Submission.Wait when the service reported
// an error frame during the reply.
var ErrStreamFailed = errors.New("chat service reported an error")

// Sender sends one chat request and returns its response stream.
// *dispatch.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*dispatch.Stream, error)
}

// Controller owns a conversation's State. It is the only writer of that
// state: every change happens under mu, and subscribers receive a snapshot
// after each change, in the order the changes were made.
//
// At most one submission is active. Events read for a submission that is
// no longer active (stopped, replaced or reset) are discarded.
type Controller struct {
	sender    Sender
	userID    string
	timeout   time.Duration
	previews  *attachment.Previews
	publisher eventstream.Publisher
	logger    *slog.Logger
	dump      io.Writer
	now       func() time.Time

	conversationID  string
	initialMessages []Message

	mu          sync.Mutex
	state       State
	active      *Submission
	closed      bool
	pending     []State
	subscribers map[int]func(State)
	nextSubID   int

	// notifyMu serializes snapshot delivery.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// NewController creates a Controller with an empty conversation, unless
// WithConversationID or WithInitialMessages resume an existing one.
func NewController(sender Sender, opts ...Option) *Controller {
	c := &Controller{
		sender:      sender,
		userID:      DefaultUserID,
		logger:      logger.Nop(),
		now:         time.Now,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.publisher == nil {
		c.publisher = nop.NewPublisher(c.logger)
	}

	id := c.conversationID
	if id == "" {
		id = newConversationID()
	}
	c.state = State{
		ConversationID: id,
		Phase:          PhaseIdle,
	}
	if len(c.initialMessages) > 0 {
		c.state.Messages = make([]Message, len(c.initialMessages))
		for i, m := range c.initialMessages {
			c.state.Messages[i] = m.clone()
		}
	}
	return c
}

// State returns a snapshot of the conversation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn may call State but must not call mutating methods. The returned
// function removes the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// SetInput replaces the pending input text.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.state.Input = text
	c.commitLocked()
	c.mu.Unlock()
	c.flush()
}

// SubmitInput submits the pending input text with files.
func (c *Controller) SubmitInput(ctx context.Context, files ...attachment.File) (*Submission, error) {
	c.mu.Lock()
	text := c.state.Input
	c.mu.Unlock()
	return c.Submit(ctx, text, files...)
}

// Submit sends text and files as a new user message and starts streaming
// the reply into a new assistant message. Blank text without files is
// ignored and returns a nil Submission. An active submission is cancelled
// before the new one starts.
//
// The reply is read in the background; ctx bounds the whole submission.
func (c *Controller) Submit(ctx context.Context, text string, files ...attachment.File) (*Submission, error) {
	if strings.TrimSpace(text) == "" && len(files) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	if c.active != nil {
		c.logger.Debug("replacing active submission",
			"assistant_message_id", c.active.AssistantMessageID,
		)
		c.cancelActiveLocked()
	}

	now := c.now()
	user := Message{
		ID:          newUserMessageID(),
		Role:        RoleUser,
		Content:     text,
		Timestamp:   now,
		Attachments: c.attachmentsFor(files),
	}
	assistant := Message{
		ID:        newAssistantMessageID(),
		Role:      RoleAssistant,
		Timestamp: now,
	}

	c.state.Messages = append(slices.Clip(c.state.Messages), user, assistant)
	c.state.Input = ""
	c.state.LastError = ""
	c.state.IsStreaming = true
	c.state.Phase = PhaseSending

	base, release := context.WithCancel(ctx)
	if c.timeout > 0 {
		base, release = withTimeout(base, release, c.timeout)
	}
	subCtx, token := dispatch.NewCancelToken(base)

	sub := &Submission{
		UserMessageID:      user.ID,
		AssistantMessageID: assistant.ID,
		token:              token,
		release:            release,
		startedAt:          now,
		done:               make(chan struct{}),
	}
	c.active = sub

	req := dispatch.Request{
		ConversationID: c.state.ConversationID,
		UserID:         c.userID,
		Message:        text,
		Files:          files,
	}

	c.commitLocked()
	c.wg.Add(1)
	c.mu.Unlock()
	c.flush()

	c.logger.Debug("submission started",
		"conversation_id", req.ConversationID,
		"assistant_message_id", sub.AssistantMessageID,
		"files", len(files),
	)

	go c.run(subCtx, sub, req)
	return sub, nil
}

// Stop cancels the active submission. The conversation is idle on return;
// the background reader winds down on its own and applies nothing further.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	c.cancelActiveLocked()
	c.state.IsStreaming = false
	c.state.Phase = PhaseIdle
	c.commitLocked()
	c.mu.Unlock()
	c.flush()
}

// Reset stops any active submission, releases every preview held by the
// conversation's messages and starts a new, empty conversation with a
// fresh ID. The pending input is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.commitLocked()
	c.mu.Unlock()
	c.flush()
}

// Close resets the conversation, waits for background readers to finish
// and closes the publisher. Submit fails after Close.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.resetLocked()
	c.commitLocked()
	c.mu.Unlock()
	c.flush()

	c.wg.Wait()
	return c.publisher.Close()
}

func (c *Controller) resetLocked() {
	c.cancelActiveLocked()

	for _, m := range c.state.Messages {
		for _, a := range m.Attachments {
			a.Preview.Release()
		}
	}

	c.state = State{
		ConversationID: newConversationID(),
		Input:          c.state.Input,
		Phase:          PhaseIdle,
	}
}

func (c *Controller) cancelActiveLocked() {
	if c.active == nil {
		return
	}
	c.active.token.Cancel()
	c.active = nil
}

func (c *Controller) attachmentsFor(files []attachment.File) []FileAttachment {
	if len(files) == 0 {
		return nil
	}

	out := make([]FileAttachment, 0, len(files))
	for _, f := range files {
		a := FileAttachment{
			Name:      f.Name,
			MimeType:  f.MimeType,
			SizeBytes: f.Size(),
		}
		if c.previews != nil && f.IsImage() {
			a.Preview = c.previews.Acquire(f)
		}
		out = append(out, a)
	}
	return out
}

// run drives one submission from request to final event.
func (c *Controller) run(ctx context.Context, sub *Submission, req dispatch.Request) {
	defer c.wg.Done()
	defer close(sub.done)
	defer sub.release()

	anomalies, err := c.stream(ctx, sub, req)
	c.finish(ctx, sub, anomalies, err)
}

// stream sends the request and applies events until the stream ends, the
// service sends its end frame, or the submission stops being active.
func (c *Controller) stream(ctx context.Context, sub *Submission, req dispatch.Request) (int, error) {
	stream, err := c.sender.Send(ctx, req)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	sub.httpStatus = stream.StatusCode

	if !c.markStreaming(sub) {
		return 0, dispatch.ErrCancelled
	}

	opts := []sse.ReaderOption{sse.WithLogger(c.logger)}
	if c.dump != nil {
		opts = append(opts, sse.WithTee(c.dump))
	}
	reader := sse.NewReader(stream.Body, opts...)

	for {
		ev, err := reader.Next()
		if err != nil {
			return reader.Anomalies(), fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			return reader.Anomalies(), nil
		}

		if !c.apply(sub, *ev) {
			return reader.Anomalies(), dispatch.ErrCancelled
		}
		if ev.Type == sse.EventEnd {
			sub.sawEnd = true
			return reader.Anomalies(), nil
		}
	}
}

func (c *Controller) markStreaming(sub *Submission) bool {
	c.mu.Lock()
	if c.active != sub {
		c.mu.Unlock()
		return false
	}
	c.state.Phase = PhaseStreaming
	c.commitLocked()
	c.mu.Unlock()
	c.flush()
	return true
}

// apply reduces ev into the state if sub is still the active submission.
func (c *Controller) apply(sub *Submission, ev sse.Event) bool {
	c.mu.Lock()
	if c.active != sub {
		c.mu.Unlock()
		return false
	}
	c.state = Reduce(c.state, sub.AssistantMessageID, ev)
	if ev.Type == sse.EventError {
		sub.streamErr = ev.Message
	}
	c.commitLocked()
	c.mu.Unlock()
	c.flush()
	return true
}

// finish records how sub ended, returns the conversation to idle if sub
// is still active, and publishes the turn event.
func (c *Controller) finish(ctx context.Context, sub *Submission, anomalies int, err error) {
	// Once the end frame is applied the turn is complete, even if Stop or
	// a new submission cancels the token before this runs.
	cancelled := !sub.sawEnd && (dispatch.IsCancelled(err) || sub.token.Cancelled() || ctx.Err() != nil)

	switch {
	case cancelled:
		sub.outcome = eventstream.OutcomeCancelled
	case err != nil:
		sub.outcome = eventstream.OutcomeFailed
		sub.err = err
	case sub.streamErr != "":
		sub.outcome = eventstream.OutcomeFailed
		sub.err = fmt.Errorf("%w: %s", ErrStreamFailed, sub.streamErr)
	default:
		sub.outcome = eventstream.OutcomeCompleted
	}

	c.mu.Lock()
	if c.active == sub {
		c.active = nil
		if sub.outcome == eventstream.OutcomeFailed && err != nil {
			c.state.LastError = err.Error()
		}
		c.state.IsStreaming = false
		c.state.Phase = PhaseIdle
		c.commitLocked()
	}

	var content, toolCalls, attachments int
	if m, ok := c.state.Message(sub.AssistantMessageID); ok {
		content = len(m.Content)
		toolCalls = len(m.ToolCalls)
	}
	if m, ok := c.state.Message(sub.UserMessageID); ok {
		attachments = len(m.Attachments)
	}
	conversationID := c.state.ConversationID
	c.mu.Unlock()
	c.flush()

	completed := c.now()
	event := &eventstream.TurnCompletedEvent{
		SchemaVersion:      eventstream.SchemaVersionV1,
		EventType:          eventstream.EventTypeTurnCompleted,
		EventID:            uuid.NewString(),
		EmittedAt:          completed,
		ConversationID:     conversationID,
		UserID:             c.userID,
		UserMessageID:      sub.UserMessageID,
		AssistantMessageID: sub.AssistantMessageID,
		Outcome:            sub.outcome,
		ContentBytes:       content,
		ToolCalls:          toolCalls,
		Attachments:        attachments,
		Anomalies:          anomalies,
		StartedAt:          sub.startedAt,
		CompletedAt:        completed,
		DurationMs:         completed.Sub(sub.startedAt).Milliseconds(),
		HTTPStatus:         sub.httpStatus,
	}
	if sub.err != nil {
		event.Error = sub.err.Error()
	}

	c.logger.Debug("submission finished",
		"assistant_message_id", sub.AssistantMessageID,
		"outcome", sub.outcome,
		"content_bytes", content,
		"anomalies", anomalies,
	)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.PublishTurn(pubCtx, event); err != nil {
		c.logger.Warn("failed to publish turn event",
			"event_id", event.EventID,
			"error", err,
		)
	}
}

// commitLocked queues a snapshot of the current state for subscribers.
// c.mu must be held.
func (c *Controller) commitLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	c.pending = append(c.pending, c.state.Clone())
}

// flush delivers queued snapshots in order. It must be called without c.mu.
func (c *Controller) flush() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		snapshot := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]func(State), 0, len(c.subscribers))
		for _, fn := range c.subscribers {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(snapshot)
		}
	}
}

func withTimeout(ctx context.Context, release context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		release()
	}
}
