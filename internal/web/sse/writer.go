// Package sse provides Server-Sent Events utilities for streaming chat
// responses.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/relaychat/relay/internal/chat"
)

// Writer wraps an http.ResponseWriter for SSE streaming. Events carry a
// JSON-encoded chat.Event in the data field, named by the event type.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates an SSE writer and sets the streaming headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent sends one chat event. The context guards against writing to
// a client that already disconnected.
func (w *Writer) WriteEvent(ctx context.Context, ev chat.Event) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.writeSSEData(string(ev.Type), string(payload))
}

// Emit adapts the writer to the orchestrator's emit callback.
func (w *Writer) Emit(ctx context.Context) chat.Emit {
	return func(ev chat.Event) error {
		return w.WriteEvent(ctx, ev)
	}
}

// writeSSEData writes data in SSE format, handling multi-line content.
// Each line of data must be prefixed with "data: ".
func (w *Writer) writeSSEData(event, content string) error {
	if _, err := fmt.Fprintf(w.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}

	// Empty line terminates the event
	if _, err := w.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}
