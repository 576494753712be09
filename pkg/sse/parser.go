package sse

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/papercomputeco/ragchat/pkg/logger"
	"github.com/papercomputeco/ragchat/pkg/utils"
)

// FramePrefix marks a line that carries an event payload.
const FramePrefix = "data: "

// defaultErrorMessage is used for "error" frames that carry no message.
const defaultErrorMessage = "stream error"

// frame is the JSON object following FramePrefix.
type frame struct {
	Type    EventType       `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Parser converts framed lines into events. Malformed frames are skipped and
// counted; they never stop the stream.
type Parser struct {
	logger    *slog.Logger
	anomalies int
}

// NewParser creates a Parser. A nil logger discards diagnostics.
func NewParser(l *slog.Logger) *Parser {
	if l == nil {
		l = logger.Nop()
	}
	return &Parser{logger: l}
}

// Parse returns the event carried by line and true, or nil and false when the
// line carries none. Lines without FramePrefix (blank separators, comments)
// are ignored silently. Unparsable payloads are logged and counted as
// anomalies. Unknown event types are ignored.
func (p *Parser) Parse(line string) (*Event, bool) {
	line = strings.TrimSuffix(line, "\r")

	payload, ok := strings.CutPrefix(line, FramePrefix)
	if !ok {
		return nil, false
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		p.anomaly("unparsable frame", line, err)
		return nil, false
	}

	switch f.Type {
	case EventStart:
		var session map[string]any
		// The frame already decoded as an object, so this cannot fail.
		_ = json.Unmarshal([]byte(payload), &session)
		delete(session, "type")
		return &Event{Type: EventStart, Session: session}, true

	case EventChunk:
		return &Event{Type: EventChunk, Text: f.Content}, true

	case EventToolCall:
		var call ToolCall
		if err := json.Unmarshal(f.Data, &call); err != nil {
			p.anomaly("malformed tool-call frame", line, err)
			return nil, false
		}
		return &Event{Type: EventToolCall, ToolCall: call}, true

	case EventError:
		msg := f.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		return &Event{Type: EventError, Message: msg}, true

	case EventEnd:
		return &Event{Type: EventEnd}, true

	default:
		p.logger.Debug("ignoring frame with unknown type",
			"type", string(f.Type),
		)
		return nil, false
	}
}

// Anomalies returns the number of malformed frames seen so far.
func (p *Parser) Anomalies() int {
	return p.anomalies
}

func (p *Parser) anomaly(msg, line string, err error) {
	p.anomalies++
	p.logger.Debug(msg,
		"line", utils.Truncate(line, 120),
		"error", err,
	)
}
