package chat

import "strings"

// smoother rechunks raw model deltas so text events break on whole words.
// Providers emit deltas at arbitrary byte offsets; holding back the
// trailing partial word keeps the client from rendering split words.
type smoother struct {
	held strings.Builder
}

// Add appends a raw delta and returns the prefix that is safe to emit,
// which may be empty. Everything after the last whitespace boundary stays
// held until a later delta or Flush completes it.
func (s *smoother) Add(delta string) string {
	s.held.WriteString(delta)
	buf := s.held.String()

	cut := strings.LastIndexAny(buf, " \t\n")
	if cut < 0 {
		return ""
	}

	// Emit through the boundary so inter-word spacing is preserved.
	out := buf[:cut+1]
	rest := buf[cut+1:]
	s.held.Reset()
	s.held.WriteString(rest)
	return out
}

// Flush returns whatever is still held, ending the stream cleanly.
func (s *smoother) Flush() string {
	out := s.held.String()
	s.held.Reset()
	return out
}
