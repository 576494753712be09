package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after a chat submission finishes,
	// whatever its outcome.
	EventTypeTurnCompleted = "ragchat.turn.completed"
)

// Outcome describes how a submission ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// TurnCompletedEvent is a transport-neutral event payload for one finished
// chat turn: a user message and the assistant reply streamed for it.
type TurnCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ConversationID     string `json:"conversation_id"`
	UserID             string `json:"user_id"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`

	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`

	ContentBytes int `json:"content_bytes"`
	ToolCalls    int `json:"tool_calls"`
	Attachments  int `json:"attachments"`
	Anomalies    int `json:"anomalies"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	HTTPStatus  int       `json:"http_status,omitempty"`
}
