package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Memory struct {
	ID        string
	UserID    string
	Content   string
	CreatedAt time.Time
}

func (s *Store) SaveMemory(ctx context.Context, userID, content string) (*Memory, error) {
	m := &Memory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO memories (id, user_id, content, created_at) VALUES (?, ?, ?, ?)"),
		m.ID, m.UserID, m.Content, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving memory: %w", err)
	}
	return m, nil
}

// SearchMemories does a plain substring search over a user's memories, most
// recent first. An empty query returns the most recent memories.
func (s *Store) SearchMemories(ctx context.Context, userID, query string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, user_id, content, created_at FROM memories WHERE user_id = ? AND content LIKE ? ORDER BY created_at DESC LIMIT ?"),
		userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
