package a2a

import "strings"

/*
Message is all non-artifact communication between client and agent. The
New*Message constructors set Kind to "message", matching Task's "task";
a zero-value Message has an empty Kind.
*/
type Message struct {
	MessageID        string         `json:"messageId"`
	ContextID        string         `json:"contextId,omitempty"`
	TaskID           string         `json:"taskId,omitempty"`
	Role             string         `json:"role"` // "user" or "agent"
	Kind             string         `json:"kind"`
	Parts            []Part         `json:"parts"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Extensions       []string       `json:"extensions,omitempty"`
}

func NewTextMessage(role, text string) *Message {
	return &Message{
		MessageID: NewID(),
		Role:      role,
		Kind:      "message",
		Parts:     []Part{NewTextPart(text)},
	}
}

func NewFileMessage(role string, file *FilePart) *Message {
	return &Message{
		MessageID: NewID(),
		Role:      role,
		Kind:      "message",
		Parts:     []Part{{Type: PartTypeFile, File: file}},
	}
}

func NewDataMessage(role string, data map[string]any) *Message {
	return &Message{
		MessageID: NewID(),
		Role:      role,
		Kind:      "message",
		Parts:     []Part{NewDataPart("application/json", data)},
	}
}

// Validate enforces the wire-shape invariants required before a message may
// be accepted by submit_task: a message id, a role, and at least one
// well-formed part.
func (m *Message) Validate() error {
	if m == nil {
		return ErrInvalidArgument("message is required")
	}
	if m.MessageID == "" {
		return ErrInvalidArgument("message.messageId is required")
	}
	if m.Role != "user" && m.Role != "agent" {
		return ErrInvalidArgument("message.role must be \"user\" or \"agent\", got %q", m.Role)
	}
	if len(m.Parts) == 0 {
		return ErrInvalidArgument("message.parts must not be empty")
	}
	for i, p := range m.Parts {
		if err := p.Validate(); err != nil {
			return ErrInvalidArgument("message.parts[%d]: %s", i, err)
		}
	}
	return nil
}

func (m *Message) String() string {
	var sb strings.Builder

	for _, part := range m.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String()
}
