package repository

import (
	"context"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/domain/user"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (conversation.Conversation, error)
	ListByActivity(ctx context.Context) ([]conversation.Conversation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status conversation.Status) (conversation.Conversation, error)
	// Delete removes the conversation and its messages, returning the deleted messages.
	Delete(ctx context.Context, id uuid.UUID) (conversation.Conversation, []message.Message, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}
