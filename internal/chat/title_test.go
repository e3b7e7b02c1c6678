package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/relaychat/relay/internal/log"
)

func TestTruncateForTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{
			name:    "short message unchanged",
			message: "What is the weather in Boston?",
			want:    "What is the weather in Boston?",
		},
		{
			name:    "whitespace trimmed",
			message: "  hello  ",
			want:    "hello",
		},
		{
			name:    "long message truncated at word boundary",
			message: strings.Repeat("word ", 30),
			want:    strings.TrimSpace(strings.Repeat("word ", 15)) + "...",
		},
		{
			name:    "empty message",
			message: "",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := truncateForTitle(tt.message)
			if got != tt.want {
				t.Errorf("truncateForTitle(%q) = %q, want %q", tt.message, got, tt.want)
			}
			if n := len([]rune(got)); n > TitleMaxLength+3 {
				t.Errorf("title length %d exceeds limit", n)
			}
		})
	}
}

func TestTitlerFallsBackWithoutModel(t *testing.T) {
	t.Parallel()

	titler := NewTitler(nil, "", log.NewNop())
	got := titler.Title(context.Background(), "Plan a weekend trip to the coast")
	if got != "Plan a weekend trip to the coast" {
		t.Errorf("Title() = %q, want the truncation fallback", got)
	}
}
