package eventstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/eventstream/memory"
)

// failingPublisher fails every call with err.
type failingPublisher struct {
	err error
}

func (f failingPublisher) PublishTurn(context.Context, *eventstream.TurnCompletedEvent) error {
	return f.err
}

func (f failingPublisher) Close() error {
	return f.err
}

var _ = Describe("TurnCompletedEvent", func() {
	It("marshals with the expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.TurnCompletedEvent{
			SchemaVersion:      eventstream.SchemaVersionV1,
			EventType:          eventstream.EventTypeTurnCompleted,
			EventID:            "evt_123",
			EmittedAt:          now,
			ConversationID:     "conv_1",
			UserID:             "anonymous",
			UserMessageID:      "user_1",
			AssistantMessageID: "assistant_1",
			Outcome:            eventstream.OutcomeCompleted,
			ContentBytes:       8,
			StartedAt:          now.Add(-2 * time.Second),
			CompletedAt:        now,
			DurationMs:         2000,
			HTTPStatus:         200,
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKeyWithValue("event_type", "ragchat.turn.completed"))
		Expect(got).To(HaveKeyWithValue("outcome", "completed"))
		Expect(got).To(HaveKeyWithValue("conversation_id", "conv_1"))
		Expect(got).To(HaveKey("assistant_message_id"))
		Expect(got).NotTo(HaveKey("error"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})

var _ = Describe("Fanout", func() {
	It("publishes to every publisher", func() {
		a, b := memory.NewPublisher(), memory.NewPublisher()
		f := eventstream.Fanout(a, b)

		Expect(f.PublishTurn(context.Background(), &eventstream.TurnCompletedEvent{EventID: "e1"})).To(Succeed())
		Expect(a.Events()).To(HaveLen(1))
		Expect(b.Events()).To(HaveLen(1))
	})

	It("keeps publishing after a failure and joins the errors", func() {
		boom := errors.New("broker down")
		rec := memory.NewPublisher()
		f := eventstream.Fanout(failingPublisher{err: boom}, rec)

		err := f.PublishTurn(context.Background(), &eventstream.TurnCompletedEvent{EventID: "e1"})
		Expect(err).To(MatchError(boom))
		Expect(rec.Events()).To(HaveLen(1))
	})

	It("rejects nil events", func() {
		f := eventstream.Fanout(memory.NewPublisher())
		Expect(f.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
	})

	It("closes every publisher", func() {
		a, b := memory.NewPublisher(), memory.NewPublisher()
		Expect(eventstream.Fanout(a, b).Close()).To(Succeed())
		Expect(a.Closed()).To(BeTrue())
		Expect(b.Closed()).To(BeTrue())
	})
})

var _ = Describe("memory.Publisher", func() {
	It("records events in order and reports the last one", func() {
		p := memory.NewPublisher()
		_, ok := p.Last()
		Expect(ok).To(BeFalse())

		Expect(p.PublishTurn(context.Background(), &eventstream.TurnCompletedEvent{EventID: "1"})).To(Succeed())
		Expect(p.PublishTurn(context.Background(), &eventstream.TurnCompletedEvent{EventID: "2"})).To(Succeed())

		last, ok := p.Last()
		Expect(ok).To(BeTrue())
		Expect(last.EventID).To(Equal("2"))
		Expect(p.Events()[0].EventID).To(Equal("1"))
	})

	It("rejects nil events", func() {
		Expect(memory.NewPublisher().PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
	})
})
