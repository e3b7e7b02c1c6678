package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// TitleMaxLength is the longest title, in runes, a conversation gets.
const TitleMaxLength = 80

// titleTimeout bounds model-based title generation so a slow title model
// never delays the first streamed token noticeably.
const titleTimeout = 5 * time.Second

// titleInputMaxRunes limits how much of the first message is sent to the
// title model.
const titleInputMaxRunes = 500

const titlePrompt = `Generate a concise title (max 80 characters) for a chat conversation based on this first message.
The title should capture the main topic or intent.
Return ONLY the title text, no quotes, no explanations, no punctuation at the end.

Message: %s

Title:`

// Titler derives conversation titles from the first user message.
type Titler struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// NewTitler creates a Titler. g may be nil, in which case titles always
// come from truncation.
func NewTitler(g *genkit.Genkit, model string, logger *slog.Logger) *Titler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Titler{g: g, model: model, logger: logger}
}

// Title returns a title for a conversation whose first message is
// userMessage. Model failures fall back to truncating the message; the
// result is never empty for a non-empty message.
func (t *Titler) Title(ctx context.Context, userMessage string) string {
	if title := t.generate(ctx, userMessage); title != "" {
		return title
	}
	return truncateForTitle(userMessage)
}

func (t *Titler) generate(ctx context.Context, userMessage string) string {
	if t.g == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	if runes := []rune(userMessage); len(runes) > titleInputMaxRunes {
		userMessage = string(runes[:titleInputMaxRunes]) + "..."
	}

	response, err := genkit.Generate(ctx, t.g,
		ai.WithModelName(t.model),
		ai.WithPrompt(titlePrompt, userMessage),
	)
	if err != nil {
		t.logger.Debug("title generation failed, falling back to truncation", "error", err)
		return ""
	}

	title := strings.TrimSpace(response.Text())
	if title == "" {
		return ""
	}
	if runes := []rune(title); len(runes) > TitleMaxLength {
		title = string(runes[:TitleMaxLength-3]) + "..."
	}
	return title
}

// truncateForTitle derives a title by truncating at a word boundary.
func truncateForTitle(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= TitleMaxLength {
		return message
	}

	truncated := string(runes[:TitleMaxLength])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > TitleMaxLength/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.TrimSpace(truncated) + "..."
}
