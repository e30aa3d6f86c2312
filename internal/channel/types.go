// Package channel carries the boundary types between channel adapters
// (Discord, Slack, SMS, email, IRC — implemented elsewhere) and the
// orchestration core, plus the redis queue consumer that feeds the core.
package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IncomingMessage is the normalized message record every adapter delivers.
type IncomingMessage struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	Context   string            `json:"context,omitempty"`
	RespondTo string            `json:"respond_to,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessageID builds a unique message id from the source channel, the
// current time, and a random component. Uniqueness is what keeps contexts
// from ever sharing state.
func NewMessageID(source string) string {
	return fmt.Sprintf("%s-%d-%s", source, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Outgoing is the final answer handed back for delivery.
type Outgoing struct {
	MessageID string `json:"message_id"`
	RespondTo string `json:"respond_to"`
	Response  string `json:"response"`
}
