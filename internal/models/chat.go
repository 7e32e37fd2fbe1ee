package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatSession owns an ordered, append-only sequence of messages.
type ChatSession struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ChatMessage belongs to one session; MessageOrder is strictly
// increasing within the session.
type ChatMessage struct {
	ID           uuid.UUID   `db:"id"`
	SessionID    uuid.UUID   `db:"session_id"`
	Role         MessageRole `db:"role"`
	Content      string      `db:"content"`
	MessageOrder int         `db:"message_order"`
	CreatedAt    time.Time   `db:"created_at"`
}
