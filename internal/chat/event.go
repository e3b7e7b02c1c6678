package chat

import "encoding/json"

// EventType identifies one kind of streaming event emitted during a turn.
type EventType string

const (
	// EventTextDelta carries an increment of the assistant's visible answer.
	EventTextDelta EventType = "text"

	// EventReasoningDelta carries an increment of the model's reasoning
	// trace, when the provider exposes one.
	EventReasoningDelta EventType = "reasoning"

	// EventToolCallStarted announces that the model invoked a tool.
	EventToolCallStarted EventType = "tool-start"

	// EventToolCallResult carries a completed tool invocation's output.
	EventToolCallResult EventType = "tool-result"

	// EventError is terminal. At most one is emitted per turn and nothing
	// follows it.
	EventError EventType = "error"

	// EventDone is terminal for successful turns.
	EventDone EventType = "done"
)

// Event is one item on a turn's response stream. Exactly one of the
// payload fields is meaningful, chosen by Type.
type Event struct {
	Type EventType `json:"type"`

	// Delta holds incremental text for EventTextDelta and
	// EventReasoningDelta.
	Delta string `json:"delta,omitempty"`

	// ToolName and ToolInput describe the invocation for
	// EventToolCallStarted; ToolName and ToolOutput for
	// EventToolCallResult.
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	ToolOutput json.RawMessage `json:"toolOutput,omitempty"`

	// Message holds the client-safe description for EventError.
	Message string `json:"message,omitempty"`

	// ConversationID and Title are set on EventDone so the client can
	// update its sidebar without a refetch.
	ConversationID string `json:"conversationId,omitempty"`
	Title          string `json:"title,omitempty"`
}

// Emit delivers events in stream order. A non-nil error tells the
// producer the consumer is gone and generation should stop.
type Emit func(Event) error
