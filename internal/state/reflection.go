package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reflection is the optional post-orchestration record of what happened
// during one message, written non-blockingly after finalization.
type Reflection struct {
	ID              string
	MessageID       string
	UserID          string
	Source          string
	OriginalMessage string
	FinalResponse   string
	Steps           int
	CapabilityLog   []CapabilityLogEntry
	CreatedAt       time.Time
}

type CapabilityLogEntry struct {
	Capability string `json:"capability"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
}

func (s *Store) SaveReflection(ctx context.Context, r *Reflection) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	logJSON, err := json.Marshal(r.CapabilityLog)
	if err != nil {
		return fmt.Errorf("marshaling capability log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind("INSERT INTO reflections (id, message_id, user_id, source, original_message, final_response, steps, capability_log, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		r.ID, r.MessageID, r.UserID, r.Source, r.OriginalMessage, r.FinalResponse, r.Steps, string(logJSON), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving reflection: %w", err)
	}
	return nil
}

// RecentReflections returns the latest reflections for a user, newest first.
func (s *Store) RecentReflections(ctx context.Context, userID string, limit int) ([]*Reflection, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, message_id, user_id, source, original_message, final_response, steps, capability_log, created_at FROM reflections WHERE user_id = ? ORDER BY created_at DESC LIMIT ?"),
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reflections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Reflection
	for rows.Next() {
		var r Reflection
		var logJSON string
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Source, &r.OriginalMessage, &r.FinalResponse, &r.Steps, &logJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reflection: %w", err)
		}
		if err := json.Unmarshal([]byte(logJSON), &r.CapabilityLog); err != nil {
			return nil, fmt.Errorf("parsing capability log: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
