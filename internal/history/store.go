// Package history persists conversation threads and messages in
// PostgreSQL. It implements chat.HistoryStore and adds the listing and
// deletion operations the HTTP surface needs.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaiwa-go/kaiwa/internal/chat"
)

// Store is a pgx-backed conversation store. Messages keep arrival order
// through a serial sequence column, independent of timestamps.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateThread inserts a new thread with the given title.
func (s *Store) CreateThread(ctx context.Context, title string) (chat.Thread, error) {
	thread := chat.Thread{ID: uuid.NewString(), Title: title}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO threads (id, title) VALUES ($1, $2) RETURNING created_at, updated_at`,
		thread.ID, title,
	).Scan(&thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		return chat.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// FindThread returns the thread with the given id, or nil when absent.
func (s *Store) FindThread(ctx context.Context, id string) (*chat.Thread, error) {
	var thread chat.Thread
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM threads WHERE id = $1`, id,
	).Scan(&thread.ID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find thread: %w", err)
	}
	return &thread, nil
}

// TouchThread bumps the thread's updated_at to now.
func (s *Store) TouchThread(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE threads SET updated_at = now() WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return nil
}

// ListThreads returns all threads, most recently updated first.
func (s *Store) ListThreads(ctx context.Context) ([]chat.Thread, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []chat.Thread
	for rows.Next() {
		var t chat.Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// CreateMessage appends a message to a thread and returns it with its
// assigned id.
func (s *Store) CreateMessage(ctx context.Context, threadID string, msg chat.Message) (chat.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var toolCalls []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCalls, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return chat.Message{}, fmt.Errorf("encode tool calls: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, thread_id, role, content, tool_calls, tool_call_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, threadID, string(msg.Role), msg.Content, toolCalls, nullable(msg.ToolCallID),
	); err != nil {
		return chat.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// UpdateMessageContent sets the content of an existing message.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET content = $2 WHERE id = $1`, id, content)
	if err != nil {
		return fmt.Errorf("update message content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message content: message %s not found", id)
	}
	return nil
}

// ListMessages returns a thread's messages in arrival order.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, role, content, tool_calls, tool_call_id
		 FROM messages WHERE thread_id = $1 ORDER BY seq`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			msg        chat.Message
			role       string
			toolCalls  []byte
			toolCallID *string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &toolCalls, &toolCallID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolCallID != nil {
			msg.ToolCallID = *toolCallID
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
