package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ragchat/pkg/attachment"
	"github.com/papercomputeco/ragchat/pkg/sse"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. ID and Role never change after
// creation. An assistant message's Content only grows while it streams.
type Message struct {
	ID          string
	Role        Role
	Content     string
	Timestamp   time.Time
	Attachments []FileAttachment
	ToolCalls   []sse.ToolCall
}

// FileAttachment describes a file sent with a user message.
type FileAttachment struct {
	Name      string
	MimeType  string
	SizeBytes int64

	// Preview is set for image attachments when the controller has a
	// preview store. It is released when the message is discarded.
	Preview *attachment.Preview
}

func (m Message) clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}

func newUserMessageID() string {
	return "user_" + uuid.NewString()
}

func newAssistantMessageID() string {
	return "assistant_" + uuid.NewString()
}

func newConversationID() string {
	return "conv_" + uuid.NewString()
}
