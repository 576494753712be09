package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/ragchat/pkg/sse"
)

// Script describes one scripted reply. Every request is answered with the
// same script.
//
//	delay = "40ms"
//
//	[[frame]]
//	type = "chunk"
//	content = "Hello"
//
//	[[frame]]
//	raw = "data: {not json"
//
//	[[frame]]
//	type = "end"
//
// A script without frames echoes the request message back word by word.
type Script struct {
	// Delay is the pause before each frame.
	Delay time.Duration `toml:"delay"`

	// Status, when set to anything but 200, answers with that status and
	// ErrorBody instead of a stream.
	Status    int    `toml:"status"`
	ErrorBody string `toml:"error_body"`

	Frames []Frame `toml:"frame"`
}

// Frame is one line of the reply.
type Frame struct {
	Type    string         `toml:"type"`
	Content string         `toml:"content"`
	Message string         `toml:"message"`
	Data    map[string]any `toml:"data"`

	// Session holds extra top-level fields of a start frame.
	Session map[string]any `toml:"session"`

	// Raw is written verbatim, with a newline appended, instead of a frame.
	Raw string `toml:"raw"`

	// Delay overrides the script delay for this frame.
	Delay time.Duration `toml:"delay"`
}

// LoadScript reads a TOML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a TOML script.
func ParseScript(data []byte) (*Script, error) {
	s := &Script{}
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing script TOML: %w", err)
	}

	for i, f := range s.Frames {
		if f.Raw == "" && f.Type == "" {
			return nil, fmt.Errorf("frame %d: needs a type or raw line", i+1)
		}
	}
	return s, nil
}

// EchoFrames returns the frames the echo script sends for message.
func EchoFrames(conversationID, message string) []Frame {
	frames := []Frame{{
		Type:    string(sse.EventStart),
		Session: map[string]any{"conversationId": conversationID},
	}}

	words := strings.Fields(message)
	if len(words) == 0 {
		words = []string{"(no", "message)"}
	}
	for i, w := range append([]string{"You", "said:"}, words...) {
		if i > 0 {
			w = " " + w
		}
		frames = append(frames, Frame{Type: string(sse.EventChunk), Content: w})
	}

	return append(frames, Frame{Type: string(sse.EventEnd)})
}

// Line renders the frame as it goes on the wire, trailing newline included.
func (f Frame) Line() (string, error) {
	if f.Raw != "" {
		return f.Raw + "\n", nil
	}

	obj := make(map[string]any, len(f.Session)+3)
	for k, v := range f.Session {
		obj[k] = v
	}
	obj["type"] = f.Type

	switch sse.EventType(f.Type) {
	case sse.EventChunk:
		obj["content"] = f.Content
	case sse.EventError:
		obj["message"] = f.Message
	case sse.EventToolCall:
		if f.Data == nil {
			return "", errors.New("tool-call frame needs data")
		}
		obj["data"] = f.Data
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	return sse.FramePrefix + string(payload) + "\n", nil
}
