// Package handlers provides the HTTP handlers for the chat API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/relaychat/relay/internal/chat"
	"github.com/relaychat/relay/internal/conversation"
	"github.com/relaychat/relay/internal/toolset"
	"github.com/relaychat/relay/internal/web/sse"
)

// SSETimeout is the maximum duration for one streaming turn. It prevents
// zombie goroutines from accumulating if clients disconnect without
// closing the connection.
const SSETimeout = 5 * time.Minute

// TurnRunner is the orchestrator surface the handler needs.
// *chat.Orchestrator satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, req chat.Request, emit chat.Emit) error
	Delete(ctx context.Context, id, session string) error
}

// ChatConfig contains configuration for the Chat handler.
type ChatConfig struct {
	Logger       *slog.Logger
	Orchestrator TurnRunner
	Sessions     *Sessions
}

// Chat handles POST and DELETE on /api/chat.
type Chat struct {
	logger       *slog.Logger
	orchestrator TurnRunner
	sessions     *Sessions
}

// NewChat creates a Chat handler. Logger is required.
func NewChat(cfg ChatConfig) *Chat {
	if cfg.Logger == nil {
		panic("NewChat: logger is required")
	}
	return &Chat{
		logger:       cfg.Logger,
		orchestrator: cfg.Orchestrator,
		sessions:     cfg.Sessions,
	}
}

// Wire shapes for the turn request body.
type turnRequest struct {
	ID                string       `json:"id"`
	Messages          []messageDTO `json:"messages"`
	SelectedTools     []string     `json:"selectedTools"`
	SelectedChatModel string       `json:"selectedChatModel"`
}

type messageDTO struct {
	ID          string                    `json:"id"`
	Role        string                    `json:"role"`
	Parts       []partDTO                 `json:"parts"`
	Attachments []conversation.Attachment `json:"experimental_attachments,omitempty"`
}

type partDTO struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Send handles POST /api/chat: parses the turn request and streams the
// model's response as SSE events.
func (h *Chat) Send(w http.ResponseWriter, r *http.Request) {
	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := chat.Request{
		ConversationID: body.ID,
		Messages:       toMessages(body),
		SelectedTools:  body.SelectedTools,
		Model:          body.SelectedChatModel,
		Session:        h.sessions.Owner(r),
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		h.logger.Error("SSE not supported", "error", err)
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), SSETimeout)
	defer cancel()

	// Headers are not committed until the first event is written, so
	// failures before streaming can still use plain HTTP statuses.
	streamed := false
	write := writer.Emit(ctx)
	emit := func(ev chat.Event) error {
		streamed = true
		return write(ev)
	}

	if err := h.orchestrator.Run(ctx, req, emit); err != nil {
		if streamed {
			// The stream already carried its single error event.
			h.logger.Debug("turn failed mid-stream", "conversation_id", body.ID, "error", err)
			return
		}
		h.writeTurnError(w, body.ID, err)
	}
}

// writeTurnError maps pre-stream turn failures to HTTP statuses.
func (h *Chat) writeTurnError(w http.ResponseWriter, conversationID string, err error) {
	h.logger.Error("turn failed", "conversation_id", conversationID, "error", err)
	switch {
	case errors.Is(err, chat.ErrMalformedRequest):
		http.Error(w, "malformed request", http.StatusBadRequest)
	case errors.Is(err, chat.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, toolset.ErrProvision):
		http.Error(w, chat.GenericErrorMessage, http.StatusBadGateway)
	default:
		http.Error(w, chat.GenericErrorMessage, http.StatusInternalServerError)
	}
}

// Delete handles DELETE /api/chat?id=…
func (h *Chat) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}

	owner := h.sessions.Owner(r)
	if owner == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	err := h.orchestrator.Delete(r.Context(), id, owner)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case err != nil:
		h.logger.Error("delete failed", "conversation_id", id, "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}
}

// toMessages converts the wire history to stored messages.
func toMessages(body turnRequest) []conversation.Message {
	out := make([]conversation.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		parts := make([]conversation.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			parts = append(parts, conversation.Part{Type: p.Type, Text: p.Text, Data: p.Data})
		}
		out = append(out, conversation.Message{
			ID:             m.ID,
			ConversationID: body.ID,
			Role:           m.Role,
			Parts:          parts,
			Attachments:    m.Attachments,
		})
	}
	return out
}
