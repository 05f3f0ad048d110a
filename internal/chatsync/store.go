// Package chatsync keeps a customer's support conversation, the admin inbox
// and their realtime subscriptions consistent with the conversation store.
// Every store and bus error stops here: operations report a bool, an empty
// result or nothing at all.
package chatsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/events"
	"support-chat/pkg/logger"
)

// Store is the request/response side of the conversation store.
// FindOpenConversation and GetConversation report a missing row as an error.
type Store interface {
	CreateConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error)
	FindOpenConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id uuid.UUID, status conversation.Status) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
	SendMessage(ctx context.Context, conversationID, sender uuid.UUID, content string, isAdmin bool) (message.Message, error)
	OwnerLabel(ctx context.Context, owner uuid.UUID) (string, error)
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)
}

// Bus is the push side: change events per channel.
type Bus interface {
	events.Subscriber
}

// DefaultPollInterval is the status backstop period.
const DefaultPollInterval = 2 * time.Second

// Options configure a widget or console session.
type Options struct {
	PollInterval time.Duration
	Logger       *logger.Logger
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return o.PollInterval
}

func (o Options) logger() *logger.Logger {
	return logger.OrNop(o.Logger).Component("chatsync")
}
