package chat

// Phase is the controller's position in its submission lifecycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSending   Phase = "sending"
	PhaseStreaming Phase = "streaming"
)

// State is a snapshot of a conversation.
type State struct {
	// ConversationID is fixed for a conversation and replaced on Reset.
	ConversationID string

	// Messages are kept in insertion order.
	Messages []Message

	// Input is the pending, not yet submitted text.
	Input string

	IsStreaming bool

	// LastError is the error to show for the latest submission, or empty.
	LastError string

	Phase Phase
}

// Clone returns a copy of s that shares no mutable data with it. Preview
// handles are shared, they are references by nature.
func (s State) Clone() State {
	if s.Messages != nil {
		msgs := make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			msgs[i] = m.clone()
		}
		s.Messages = msgs
	}
	return s
}

// Message returns the message with the given ID.
func (s State) Message(id string) (Message, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Messages[i], true
	}
	return Message{}, false
}

// Last returns the most recent message.
func (s State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s State) indexOf(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
