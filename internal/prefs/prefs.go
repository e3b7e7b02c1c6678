// Package prefs stores each session's selected tool identifiers.
//
// The selection lives in two places that may transiently disagree:
//
//   - a durable local SQLite database, authoritative for rendering, and
//   - a same-named cookie the server reads to pick a default selection
//     before the durable copy has been consulted.
//
// The durable write always wins; mirroring to the cookie is fire-and-forget
// and its failure never blocks or rolls back the durable update. Get never
// writes the supplied default back to durable storage, so a cold start can
// not clobber a previously persisted selection.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CookieName is the server-visible mirror of the durable selection.
const CookieName = "selected_tools"

const schema = `
CREATE TABLE IF NOT EXISTS tool_prefs (
    session_id TEXT PRIMARY KEY,
    tools      TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// Observer is notified after a selection change has been durably written.
type Observer func(sessionID string, tools []string)

// Store holds per-session tool selections. Safe for concurrent use.
type Store struct {
	db       *sql.DB
	defaults []string
	logger   *slog.Logger

	mu        sync.Mutex
	observers []Observer
}

// Open opens (creating if needed) the preference database at path.
// defaults is the selection reported for sessions with no durable copy.
func Open(path string, defaults []string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preference database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize preference schema: %w", err)
	}

	return &Store{
		db:       db,
		defaults: slices.Clone(defaults),
		logger:   logger,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close preference database: %w", err)
	}
	return nil
}

// Get returns the selection for sessionID, seeding from the durable copy
// when present and from the defaults otherwise. found reports whether a
// usable durable copy existed, so callers can fall back to the cookie
// mirror. The returned slice is the caller's to keep.
func (s *Store) Get(ctx context.Context, sessionID string) (tools []string, found bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT tools FROM tool_prefs WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return slices.Clone(s.defaults), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read preference for %s: %w", sessionID, err)
	}

	if err := json.Unmarshal([]byte(raw), &tools); err != nil {
		// A corrupt row falls back to defaults rather than failing the page.
		s.logger.Warn("malformed preference row, using defaults",
			"session_id", sessionID, "error", err)
		return slices.Clone(s.defaults), false, nil
	}
	return tools, true, nil
}

// Set replaces the selection for sessionID, writes it durably, then
// notifies observers. Observers run synchronously after the write commits.
func (s *Store) Set(ctx context.Context, sessionID string, tools []string) error {
	raw, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_prefs (session_id, tools, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET tools = excluded.tools, updated_at = excluded.updated_at`,
		sessionID, string(raw), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("write preference for %s: %w", sessionID, err)
	}

	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		if fn != nil {
			fn(sessionID, slices.Clone(tools))
		}
	}

	s.logger.Debug("updated tool selection", "session_id", sessionID, "tools", tools)
	return nil
}

// Subscribe registers an observer and returns its unsubscribe function.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
	i := len(s.observers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.observers[i] = nil
	}
}

// Cookie builds the best-effort mirror cookie for a selection.
func Cookie(tools []string) (*http.Cookie, error) {
	raw, err := json.Marshal(tools)
	if err != nil {
		return nil, fmt.Errorf("marshal cookie value: %w", err)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    url.QueryEscape(string(raw)),
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// FromCookie reads the mirrored selection from a request. Returns nil when
// the cookie is absent or unparseable; the durable copy is authoritative
// anyway.
func FromCookie(r *http.Request) []string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return nil
	}
	var tools []string
	if err := json.Unmarshal([]byte(raw), &tools); err != nil {
		return nil
	}
	return tools
}
