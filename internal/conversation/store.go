// Package conversation persists chat threads and their messages in
// PostgreSQL. It is the single gateway the turn orchestrator goes through;
// cascading deletion of messages is enforced by the schema, not by callers.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages conversation persistence with a PostgreSQL backend.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Get retrieves a conversation by ID. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Owner, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

// Create inserts a new conversation row.
func (s *Store) Create(ctx context.Context, id, owner, title string) error {
	var ownerVal *string
	if owner != "" {
		ownerVal = &owner
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, owner_id, title, created_at) VALUES ($1, $2, $3, now())`,
		id, ownerVal, title,
	)
	if err != nil {
		return fmt.Errorf("create conversation %s: %w", id, err)
	}
	s.logger.Debug("created conversation", "id", id, "title", title)
	return nil
}

// AppendMessages inserts messages in one transaction. Either every message
// lands or none does.
func (s *Store) AppendMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	for i, msg := range messages {
		parts, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("marshal parts of message %d: %w", i, err)
		}
		attachments, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("marshal attachments of message %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, parts, attachments, created_at)
			 VALUES ($1, $2, $3, $4, $5, now())`,
			msg.ID, msg.ConversationID, msg.Role, parts, attachments,
		); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("appended messages",
		"conversation_id", messages[0].ConversationID, "count", len(messages))
	return nil
}

// ListMessages returns a conversation's messages in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int32) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, parts, attachments, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m               Message
			partsJSON       []byte
			attachmentsJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &partsJSON, &attachmentsJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(partsJSON, &m.Parts); err != nil {
			s.logger.Warn("skipping message with malformed parts",
				"message_id", m.ID, "error", err)
			continue
		}
		if len(attachmentsJSON) > 0 {
			if err := json.Unmarshal(attachmentsJSON, &m.Attachments); err != nil {
				s.logger.Warn("dropping malformed attachments", "message_id", m.ID, "error", err)
				m.Attachments = nil
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Delete removes a conversation; its messages go with it via the schema's
// ON DELETE CASCADE. Returns ErrNotFound when no row matched.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete conversation %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}
