package conversation

import (
	"encoding/json"
	"strings"
	"time"
)

// Roles a message may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one chat thread. Owner is nil for rows that predate
// ownership; anonymous sessions never create rows at all.
type Conversation struct {
	ID        string
	Owner     *string
	Title     string
	CreatedAt time.Time
}

// Part is one ordered content part of a message: plain text or a structured
// block kept as raw JSON.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// Attachment references a file attached to a message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// Message belongs to exactly one conversation. Assistant message IDs are
// generated server-side; user message IDs come from the client and are
// trusted only after the turn has been validated against the session.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Parts          []Part
	Attachments    []Attachment
	CreatedAt      time.Time
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
