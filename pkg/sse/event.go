// Package sse turns the chat service's chunked response body into typed
// stream events.
//
// The wire format is a sequence of newline-terminated frames:
//
//	data: {"type":"chunk","content":"Hel"}
//	data: {"type":"chunk","content":"lo"}
//	data: {"type":"end"}
//
// Network reads never line up with frame boundaries, so decoding is split in
// three stages: Decoder turns raw byte buffers into complete lines, Parser
// turns one line into at most one Event, and Reader drives both over an
// io.Reader.
package sse

import (
	"encoding/json"
	"errors"
)

// EventType is the discriminator carried in the "type" field of a frame.
type EventType string

const (
	EventStart    EventType = "start"
	EventChunk    EventType = "chunk"
	EventToolCall EventType = "tool-call"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// Event is a single typed stream event decoded from one frame. Only the field
// matching Type is populated.
type Event struct {
	Type EventType

	// Session holds the whole "start" frame. It is informational only.
	Session map[string]any

	// Text is the incremental assistant text of a "chunk" frame.
	Text string

	// ToolCall is the record carried in the "data" field of a "tool-call" frame.
	ToolCall ToolCall

	// Message is the human readable error of an "error" frame.
	Message string
}

// ToolCall is the minimal documented shape of a tool-call record. The service
// may send extra fields; the complete original object is kept in Raw so
// nothing is lost when the record is handed to a consumer.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	Raw json.RawMessage `json:"-"`
}

var errToolCallNotObject = errors.New("tool-call data is not an object")

// UnmarshalJSON decodes the known fields and keeps a copy of the raw object.
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return errToolCallNotObject
	}

	type plain ToolCall
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*t = ToolCall(p)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the original object back out when it is known.
func (t ToolCall) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}

	type plain ToolCall
	return json.Marshal(plain(t))
}
