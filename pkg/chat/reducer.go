package chat

import (
	"slices"

	"github.com/papercomputeco/ragchat/pkg/sse"
)

// Reduce applies one stream event to s and returns the resulting state.
// targetID names the assistant message the stream belongs to. Reduce never
// modifies s: a changed message list is copied before it is written.
//
//   - start:     no change
//   - chunk:     text appended to the target's Content
//   - tool-call: call appended to the target's ToolCalls
//   - error:     LastError set, streaming continues
//   - end:       streaming finished
//
// Message events for a target that is missing, or not an assistant message,
// leave s untouched.
func Reduce(s State, targetID string, ev sse.Event) State {
	switch ev.Type {
	case sse.EventChunk:
		return updateTarget(s, targetID, func(m *Message) {
			m.Content += ev.Text
		})

	case sse.EventToolCall:
		return updateTarget(s, targetID, func(m *Message) {
			m.ToolCalls = append(slices.Clip(m.ToolCalls), ev.ToolCall)
		})

	case sse.EventError:
		s.LastError = ev.Message

	case sse.EventEnd:
		s.IsStreaming = false
		s.Phase = PhaseIdle
	}

	return s
}

func updateTarget(s State, targetID string, fn func(*Message)) State {
	i := s.indexOf(targetID)
	if i < 0 || s.Messages[i].Role != RoleAssistant {
		return s
	}

	msgs := slices.Clone(s.Messages)
	fn(&msgs[i])
	s.Messages = msgs
	return s
}
