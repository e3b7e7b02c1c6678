package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaychat/relay/internal/chat"
	"github.com/relaychat/relay/internal/testutil"
)

// noFlush hides the recorder's Flush method.
type noFlush struct {
	http.ResponseWriter
}

func TestNewWriterRequiresFlusher(t *testing.T) {
	t.Parallel()

	if _, err := NewWriter(noFlush{httptest.NewRecorder()}); err == nil {
		t.Error("NewWriter accepted a non-flushing writer")
	}
}

func TestNewWriterSetsStreamingHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if _, err := NewWriter(rec); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestWriteEvent(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := w.WriteEvent(ctx, chat.Event{Type: chat.EventTextDelta, Delta: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEvent(ctx, chat.Event{Type: chat.EventDone, ConversationID: "c1"}); err != nil {
		t.Fatal(err)
	}

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != string(chat.EventTextDelta) {
		t.Errorf("first event type = %q", events[0].Type)
	}

	var payload chat.Event
	if err := json.Unmarshal([]byte(events[0].Data), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Delta != "hello" {
		t.Errorf("delta = %q", payload.Delta)
	}
}

func TestWriteEventMultilinePayload(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatal(err)
	}

	// JSON escapes newlines, so the payload stays single-line on the wire,
	// but the writer must still survive raw newlines in future payloads.
	if err := w.WriteEvent(context.Background(), chat.Event{
		Type:  chat.EventTextDelta,
		Delta: "line one\nline two",
	}); err != nil {
		t.Fatal(err)
	}

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	var payload chat.Event
	if err := json.Unmarshal([]byte(events[0].Data), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Delta != "line one\nline two" {
		t.Errorf("delta = %q", payload.Delta)
	}
}

func TestWriteEventCanceledContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.WriteEvent(ctx, chat.Event{Type: chat.EventDone}); err == nil {
		t.Error("WriteEvent succeeded on a canceled context")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("bytes written after cancel: %q", rec.Body.String())
	}
}

func TestEmitAdapter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	emit := w.Emit(ctx)

	if err := emit(chat.Event{Type: chat.EventTextDelta, Delta: "hi"}); err != nil {
		t.Fatalf("emit error = %v", err)
	}
	events := testutil.ParseSSEEvents(t, rec.Body.String())
	if len(events) != 1 || events[0].Type != string(chat.EventTextDelta) {
		t.Fatalf("events = %+v, want one text event", events)
	}

	cancel()
	if err := emit(chat.Event{Type: chat.EventDone}); err == nil {
		t.Error("emit after cancel succeeded, want context error")
	}
}
