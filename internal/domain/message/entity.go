package message

import (
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table. Rows are append-only.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	IsAdmin        bool      `json:"is_admin"`
	CreatedAt      time.Time `json:"created_at"`
}

// MaxContentLength bounds a single message body in bytes.
const MaxContentLength = 4000

func (Message) TableName() string {
	return "messages"
}
