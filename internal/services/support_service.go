package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/events"
	"support-chat/internal/repository"
	support_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
)

// LabelCache stores resolved owner labels.
type LabelCache interface {
	GetLabel(ctx context.Context, userID uuid.UUID) (string, bool, error)
	SetLabel(ctx context.Context, userID uuid.UUID, label string) error
}

// TranscriptArchiver keeps a copy of a conversation before it is deleted.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, conv conversation.Conversation, msgs []message.Message) (string, error)
}

// SupportService implements the conversation store operations on top of the
// repositories and publishes a change event after every mutation.
type SupportService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	publisher     *EventPublisher
	labels        LabelCache
	archiver      TranscriptArchiver
	log           *logger.Logger
}

type SupportOption func(*SupportService)

func WithLabelCache(c LabelCache) SupportOption {
	return func(s *SupportService) { s.labels = c }
}

func WithTranscriptArchiver(a TranscriptArchiver) SupportOption {
	return func(s *SupportService) { s.archiver = a }
}

func NewSupportService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	publisher *EventPublisher,
	l *logger.Logger,
	opts ...SupportOption,
) *SupportService {
	s := &SupportService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		publisher:     publisher,
		log:           logger.OrNop(l).Component("support_service"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *SupportService) CreateConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	if owner == uuid.Nil {
		return conversation.Conversation{}, support_errors.ErrInvalidInput
	}
	conv := conversation.Conversation{UserID: owner, Status: conversation.StatusOpen}
	if err := s.conversations.Create(ctx, &conv); err != nil {
		return conversation.Conversation{}, err
	}
	s.publisher.PublishConversation(ctx, events.ChangeInsert, &conv, nil)
	return conv, nil
}

// FindOpenConversation returns ErrNotFound when owner has no open conversation.
func (s *SupportService) FindOpenConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	if owner == uuid.Nil {
		return conversation.Conversation{}, support_errors.ErrInvalidInput
	}
	return s.conversations.FindOpenByUser(ctx, owner)
}

// ResolveForUser returns the owner's open conversation, creating it when
// absent. A concurrent resolver that wins the one-open-per-owner index makes
// Create fail with ErrConflict; the winner is then re-read once.
func (s *SupportService) ResolveForUser(ctx context.Context, owner uuid.UUID) (conversation.Conversation, bool, error) {
	conv, err := s.FindOpenConversation(ctx, owner)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, support_errors.ErrNotFound) {
		return conversation.Conversation{}, false, err
	}

	conv, err = s.CreateConversation(ctx, owner)
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, support_errors.ErrConflict) {
		return conversation.Conversation{}, false, err
	}
	s.log.Ctx(ctx).Info("open conversation created concurrently, re-reading", zap.String("owner", owner.String()))
	conv, err = s.FindOpenConversation(ctx, owner)
	if err != nil {
		return conversation.Conversation{}, false, err
	}
	return conv, false, nil
}

func (s *SupportService) GetConversation(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	return s.conversations.GetByID(ctx, id)
}

// AccessConversation loads id and checks that userID owns it or is an admin.
func (s *SupportService) AccessConversation(ctx context.Context, id, userID uuid.UUID, isAdmin bool) (conversation.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !isAdmin && conv.UserID != userID {
		return conversation.Conversation{}, support_errors.ErrForbidden
	}
	return conv, nil
}

// ListConversations returns every conversation, most recent activity first.
func (s *SupportService) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	items, err := s.conversations.ListByActivity(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []conversation.Conversation{}
	}
	return items, nil
}

// ListSummaries returns the inbox: every conversation with its owner label.
// Label failures fall back to conversation.UnknownLabel.
func (s *SupportService) ListSummaries(ctx context.Context) ([]conversation.Summary, error) {
	items, err := s.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Summary, 0, len(items))
	for _, c := range items {
		label, err := s.OwnerLabel(ctx, c.UserID)
		if err != nil || label == "" {
			label = conversation.UnknownLabel
		}
		out = append(out, conversation.Summary{Conversation: c, UserEmail: label})
	}
	return out, nil
}

// UpdateConversationStatus sets status on id. Reopening while the owner has
// another open conversation fails with ErrConflict.
func (s *SupportService) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status conversation.Status) error {
	_, err := s.SetStatus(ctx, id, status)
	return err
}

func (s *SupportService) SetStatus(ctx context.Context, id uuid.UUID, status conversation.Status) (conversation.Conversation, error) {
	if !status.Valid() {
		return conversation.Conversation{}, support_errors.ErrInvalidInput
	}
	old, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	updated, err := s.conversations.UpdateStatus(ctx, id, status)
	if err != nil {
		return conversation.Conversation{}, err
	}
	s.log.Ctx(ctx).Info("conversation status changed",
		zap.String("conversation_id", id.String()),
		zap.String("from", string(old.Status)),
		zap.String("to", string(updated.Status)))
	s.publisher.PublishConversation(ctx, events.ChangeUpdate, &updated, &old)
	return updated, nil
}

// DeleteConversation removes id and its messages. When an archiver is
// configured the transcript is stored first and a failed upload aborts the delete.
func (s *SupportService) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	if s.archiver != nil {
		conv, err := s.conversations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		msgs, err := s.messages.ListByConversation(ctx, id)
		if err != nil {
			return err
		}
		key, err := s.archiver.ArchiveTranscript(ctx, conv, msgs)
		if err != nil {
			s.log.Ctx(ctx).Error("archive transcript", zap.String("conversation_id", id.String()), zap.Error(err))
			return fmt.Errorf("%w: archive transcript", support_errors.ErrServiceUnavailable)
		}
		s.log.Ctx(ctx).Info("transcript archived", zap.String("conversation_id", id.String()), zap.String("key", key))
	}

	deleted, removed, err := s.conversations.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.log.Ctx(ctx).Info("conversation deleted",
		zap.String("conversation_id", id.String()),
		zap.Int("messages", len(removed)))
	s.publisher.PublishConversation(ctx, events.ChangeDelete, nil, &deleted)
	return nil
}

// ListMessages returns the conversation's messages in ascending creation order.
func (s *SupportService) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	msgs, err := s.messages.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

// SendMessage appends a message. Customers cannot write to a closed conversation.
func (s *SupportService) SendMessage(ctx context.Context, conversationID, sender uuid.UUID, content string, isAdmin bool) (message.Message, error) {
	content = strings.TrimSpace(content)
	if sender == uuid.Nil || content == "" || len(content) > message.MaxContentLength {
		return message.Message{}, support_errors.ErrInvalidInput
	}
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return message.Message{}, err
	}
	if !isAdmin && conv.Status == conversation.StatusClosed {
		return message.Message{}, support_errors.ErrConversationClosed
	}

	m := message.Message{
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		IsAdmin:        isAdmin,
	}
	if err := s.messages.Create(ctx, &m); err != nil {
		return message.Message{}, err
	}
	s.publisher.PublishMessageNew(ctx, m)
	return m, nil
}

// OwnerLabel resolves the owner's contact email, consulting the label cache first.
func (s *SupportService) OwnerLabel(ctx context.Context, owner uuid.UUID) (string, error) {
	if s.labels != nil {
		label, ok, err := s.labels.GetLabel(ctx, owner)
		if err != nil {
			s.log.Ctx(ctx).Warn("label cache read", zap.Error(err))
		} else if ok {
			return label, nil
		}
	}

	u, err := s.users.GetByID(ctx, owner)
	if err != nil {
		return "", err
	}
	if u.Email == "" {
		return "", support_errors.ErrNotFound
	}
	if s.labels != nil {
		if err := s.labels.SetLabel(ctx, owner, u.Email); err != nil {
			s.log.Ctx(ctx).Warn("label cache write", zap.Error(err))
		}
	}
	return u.Email, nil
}
