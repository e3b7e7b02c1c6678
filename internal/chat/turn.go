// Package chat runs one conversational turn: authorize, persist the user
// message, provision the selected tools, stream the model's answer as a
// tagged event sequence, and persist the assistant message.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/relaychat/relay/internal/conversation"
	"github.com/relaychat/relay/internal/toolset"
)

// systemPrompt is the base persona. Advisory fragments from the active
// tools are appended per turn.
const systemPrompt = `You are a friendly assistant! Keep your responses concise and helpful.`

// Gateway is the conversation persistence surface the orchestrator needs.
// *conversation.Store satisfies it.
type Gateway interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	Create(ctx context.Context, id, owner, title string) error
	AppendMessages(ctx context.Context, messages []conversation.Message) error
	Delete(ctx context.Context, id string) error
}

// Provisioner opens tool handles for a turn. *toolset.Provisioner
// satisfies it; tests substitute a stub.
type Provisioner interface {
	Provision(ctx context.Context, ids []string) ([]*toolset.Handle, error)
	CloseAll(ctx context.Context, handles []*toolset.Handle)
}

// TitleSource names new conversations from their first message.
type TitleSource interface {
	Title(ctx context.Context, userMessage string) string
}

// Request is one parsed turn.
type Request struct {
	// ConversationID is the client-chosen conversation identifier.
	ConversationID string

	// Messages is the full history; the last entry must be user-authored.
	Messages []conversation.Message

	// SelectedTools are the tool identifiers active for this turn.
	SelectedTools []string

	// Model optionally selects the model for this turn. Empty means the
	// server default; non-empty values are provider-qualified before use.
	Model string

	// Session is the authenticated owner id, empty for anonymous turns.
	// Anonymous turns stream normally but are never persisted.
	Session string
}

// Config wires an Orchestrator.
type Config struct {
	Genkit      *genkit.Genkit
	Gateway     Gateway
	Provisioner Provisioner
	Titler      TitleSource
	Logger      *slog.Logger

	// Model is the provider-qualified default model name, used when a
	// request does not select one.
	Model string

	// ResolveModel maps a client-selected model id to its
	// provider-qualified name. Nil means ids are used verbatim.
	ResolveModel func(id string) string

	// MaxTurns bounds model-internal tool round trips per generation.
	MaxTurns int

	// GenerateLimit throttles model generations across all sessions.
	// Nil means unlimited.
	GenerateLimit *rate.Limiter
}

// Orchestrator executes turns. Safe for concurrent use; each Run streams
// to exactly one consumer.
type Orchestrator struct {
	g           *genkit.Genkit
	gateway     Gateway
	provisioner Provisioner
	titler      TitleSource
	logger       *slog.Logger
	model        string
	resolveModel func(id string) string
	maxTurns     int
	limiter      *rate.Limiter
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		g:            cfg.Genkit,
		gateway:      cfg.Gateway,
		provisioner:  cfg.Provisioner,
		titler:       cfg.Titler,
		logger:       logger,
		model:        cfg.Model,
		resolveModel: cfg.ResolveModel,
		maxTurns:     cfg.MaxTurns,
		limiter:      cfg.GenerateLimit,
	}
}

// Run executes one turn, delivering events through emit in stream order.
// The returned error reflects the turn's outcome for logging and status
// mapping; stream consumers see failures only as a single error event.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit Emit) error {
	if err := validate(req); err != nil {
		return err
	}

	title, created, err := o.persistUserMessage(ctx, req)
	if err != nil {
		return err
	}

	handles, err := o.provisioner.Provision(ctx, req.SelectedTools)
	if err != nil {
		return err
	}
	defer o.provisioner.CloseAll(ctx, handles)

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	response, streamErr := o.generate(ctx, req, handles, emit)
	if streamErr != nil {
		if ctx.Err() != nil {
			// Client is gone; nothing to report and nobody to report to.
			return ctx.Err()
		}
		o.logger.Error("generation failed", "conversation_id", req.ConversationID, "error", streamErr)
		if werr := emit(Event{Type: EventError, Message: GenericErrorMessage}); werr != nil {
			o.logger.Debug("error event not delivered", "error", werr)
		}
		return fmt.Errorf("%w: %w", ErrGeneration, streamErr)
	}

	o.persistAssistantMessage(ctx, req, response)

	doneTitle := ""
	if created {
		doneTitle = title
	}
	if err := emit(Event{Type: EventDone, ConversationID: req.ConversationID, Title: doneTitle}); err != nil {
		o.logger.Debug("done event not delivered", "error", err)
	}
	return nil
}

// validate checks the request shape before any side effect runs.
func validate(req Request) error {
	if req.ConversationID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrMalformedRequest)
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: empty message history", ErrMalformedRequest)
	}
	if req.Messages[len(req.Messages)-1].Role != conversation.RoleUser {
		return fmt.Errorf("%w: last message not user-authored", ErrMalformedRequest)
	}
	if strings.ContainsAny(req.Model, " \t\r\n") {
		return fmt.Errorf("%w: invalid model id %q", ErrMalformedRequest, req.Model)
	}
	return nil
}

// modelFor picks the model for a turn: the request's selection,
// provider-qualified, or the configured default.
func (o *Orchestrator) modelFor(req Request) string {
	if req.Model == "" {
		return o.model
	}
	if o.resolveModel != nil {
		return o.resolveModel(req.Model)
	}
	return req.Model
}

// persistUserMessage creates the conversation if needed and appends the
// final user message. Anonymous sessions skip persistence entirely.
// Returns the title and whether the conversation was created this turn.
func (o *Orchestrator) persistUserMessage(ctx context.Context, req Request) (string, bool, error) {
	if req.Session == "" {
		return "", false, nil
	}

	last := req.Messages[len(req.Messages)-1]
	title := ""
	created := false

	conv, err := o.gateway.Get(ctx, req.ConversationID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		title = o.titler.Title(ctx, last.Text())
		if err := o.gateway.Create(ctx, req.ConversationID, req.Session, title); err != nil {
			return "", false, fmt.Errorf("create conversation: %w", err)
		}
		created = true
	case err != nil:
		return "", false, fmt.Errorf("load conversation: %w", err)
	default:
		if conv.Owner == nil || *conv.Owner != req.Session {
			return "", false, ErrForbidden
		}
		title = conv.Title
	}

	last.ConversationID = req.ConversationID
	if last.CreatedAt.IsZero() {
		last.CreatedAt = time.Now().UTC()
	}
	if err := o.gateway.AppendMessages(ctx, []conversation.Message{last}); err != nil {
		return "", false, fmt.Errorf("append user message: %w", err)
	}
	return title, created, nil
}

// generate runs the model with the merged tool set, relaying smoothed
// text, reasoning, and tool events through emit.
func (o *Orchestrator) generate(ctx context.Context, req Request, handles []*toolset.Handle, emit Emit) (*ai.ModelResponse, error) {
	system := systemPrompt
	var toolRefs []ai.ToolRef
	for _, h := range handles {
		if h.Advisory != "" {
			system += "\n\n" + h.Advisory
		}
		for _, t := range h.Tools {
			toolRefs = append(toolRefs, t)
		}
	}

	var smooth smoother
	stream := func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		for _, part := range chunk.Content {
			if err := o.relayPart(part, &smooth, emit); err != nil {
				return err
			}
		}
		return nil
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(o.modelFor(req)),
		ai.WithSystem(system),
		ai.WithMessages(toModelMessages(req.Messages)...),
		ai.WithMaxTurns(o.maxTurns),
		ai.WithStreaming(stream),
	}
	if len(toolRefs) > 0 {
		opts = append(opts, ai.WithTools(toolRefs...))
	}

	response, err := genkit.Generate(ctx, o.g, opts...)
	if err != nil {
		return nil, err
	}

	if tail := smooth.Flush(); tail != "" {
		if err := emit(Event{Type: EventTextDelta, Delta: tail}); err != nil {
			return nil, err
		}
	}
	return response, nil
}

// relayPart maps one model chunk part onto a stream event.
func (o *Orchestrator) relayPart(part *ai.Part, smooth *smoother, emit Emit) error {
	switch {
	case part.IsToolRequest():
		input, err := json.Marshal(part.ToolRequest.Input)
		if err != nil {
			input = nil
		}
		return emit(Event{
			Type:      EventToolCallStarted,
			ToolName:  part.ToolRequest.Name,
			ToolInput: input,
		})
	case part.IsToolResponse():
		output, err := json.Marshal(part.ToolResponse.Output)
		if err != nil {
			output = nil
		}
		return emit(Event{
			Type:       EventToolCallResult,
			ToolName:   part.ToolResponse.Name,
			ToolOutput: output,
		})
	case part.IsReasoning():
		if part.Text != "" {
			return emit(Event{Type: EventReasoningDelta, Delta: part.Text})
		}
		return nil
	case part.IsText():
		if out := smooth.Add(part.Text); out != "" {
			return emit(Event{Type: EventTextDelta, Delta: out})
		}
		return nil
	default:
		return nil
	}
}

// persistAssistantMessage saves the final answer for authenticated turns.
// Failures here are logged and swallowed; the streamed output already
// reached the client and is never retracted.
func (o *Orchestrator) persistAssistantMessage(ctx context.Context, req Request, response *ai.ModelResponse) {
	if req.Session == "" || response == nil || response.Message == nil {
		return
	}

	var parts []conversation.Part
	for _, p := range response.Message.Content {
		if p.IsText() && p.Text != "" {
			parts = append(parts, conversation.Part{Type: "text", Text: p.Text})
		}
	}
	if len(parts) == 0 {
		return
	}

	msg := conversation.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           conversation.RoleAssistant,
		Parts:          parts,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.gateway.AppendMessages(ctx, []conversation.Message{msg}); err != nil {
		o.logger.Error("assistant message not persisted",
			"conversation_id", req.ConversationID, "error", err)
	}
}

// Delete removes a conversation after an ownership check.
func (o *Orchestrator) Delete(ctx context.Context, id, session string) error {
	conv, err := o.gateway.Get(ctx, id)
	if err != nil {
		return err
	}
	if session == "" || conv.Owner == nil || *conv.Owner != session {
		return ErrForbidden
	}
	return o.gateway.Delete(ctx, id)
}

// toModelMessages converts stored history to model messages, keeping text
// parts only.
func toModelMessages(messages []conversation.Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(messages))
	for _, m := range messages {
		role := ai.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = ai.RoleModel
		}
		var parts []*ai.Part
		for _, p := range m.Parts {
			if p.Type == "text" && p.Text != "" {
				parts = append(parts, ai.NewTextPart(p.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &ai.Message{Role: role, Content: parts})
	}
	return out
}
