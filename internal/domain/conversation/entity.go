package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// Conversation represents the conversations table
type Conversation struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Summary is a conversation annotated with the owner's display label, as
// shown in the admin inbox.
type Summary struct {
	Conversation
	UserEmail string `json:"user_email"`
}

// UnknownLabel is shown when the owner label cannot be resolved.
const UnknownLabel = "Unknown"

func (Conversation) TableName() string {
	return "conversations"
}
