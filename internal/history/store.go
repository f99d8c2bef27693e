// Package history persists logical inbound and outbound messages. It is
// an audit/analytics collaborator: callers log its failures and move on.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one persisted chat message.
type Entry struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// Writer is the write-side contract used by the pipeline and delivery.
type Writer interface {
	Persist(ctx context.Context, senderID, role, content, channelName string) error
}

// Store persists chat history in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store over the given pool.
func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "history")),
	}
}

// EnsureSchema creates the chat_messages table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY,
			sender_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			channel TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS chat_messages_sender_created_idx
			ON chat_messages (sender_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("ensure chat_messages schema: %w", err)
	}
	return nil
}

// Persist writes a single message row.
func (s *Store) Persist(ctx context.Context, senderID, role, content, channelName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, sender_id, role, content, channel)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), senderID, role, content, channelName)
	if err != nil {
		return fmt.Errorf("persist chat message: %w", err)
	}
	return nil
}

// ListRecent returns the newest messages for a sender, newest first.
func (s *Store) ListRecent(ctx context.Context, senderID string, limit int32) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, role, content, channel, created_at
		FROM chat_messages
		WHERE sender_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		if err := rows.Scan(&id, &e.SenderID, &e.Role, &e.Content, &e.Channel, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		e.ID = id.String()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Noop is a Writer that discards everything. Used when Postgres is not
// configured.
type Noop struct{}

// Persist implements Writer.
func (Noop) Persist(ctx context.Context, senderID, role, content, channelName string) error {
	return nil
}
