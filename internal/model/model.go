package model

// Role tags who a message or fragment belongs to in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Fragment is one atomic unit of generated text. Hidden fragments steer the
// model (prompt scaffolding, priming text) and are never shown to end users.
type Fragment struct {
	Text   string `json:"text"`
	Hidden bool   `json:"hidden"`
	Role   Role   `json:"role"`
}

// FrameType discriminates the non-terminal and error transport frames.
type FrameType string

const (
	FrameText  FrameType = "text"
	FrameError FrameType = "error"
)

// Frame is the JSON payload of a single server-sent event on the timeline
// stream. Exactly one of: a text frame, a done frame, or an error frame.
type Frame struct {
	Type FrameType `json:"type,omitempty"`
	Text string    `json:"text,omitempty"`
	Done bool      `json:"done,omitempty"`
}

// IsTerminal reports whether the frame ends the stream.
func (f Frame) IsTerminal() bool {
	return f.Done || f.Type == FrameError
}

// TimelineParams carries the user's event description.
type TimelineParams struct {
	Event string `json:"event" validate:"required" example:"The Sinking of the Titanic"`
}

// TimelineRequest is the body of POST /timeline.
type TimelineRequest struct {
	Stream bool           `json:"stream,omitempty"`
	Params TimelineParams `json:"params"`
}
