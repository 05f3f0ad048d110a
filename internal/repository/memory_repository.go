package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/domain/user"
	support_errors "support-chat/pkg/errors"
)

// MemoryStore keeps users, conversations and messages in process memory with
// the same constraints as the Postgres schema: one open conversation per
// owner and messages removed together with their conversation. It backs the
// api server when no database is configured and the handler tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]conversation.Conversation
	messages      map[uuid.UUID][]message.Message
	users         map[uuid.UUID]user.User
	admins        map[uuid.UUID]bool
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]conversation.Conversation),
		messages:      make(map[uuid.UUID][]message.Message),
		users:         make(map[uuid.UUID]user.User),
		admins:        make(map[uuid.UUID]bool),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Tests use it for deterministic ordering.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutUser registers u in the contact directory.
func (s *MemoryStore) PutUser(u user.User, isAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
	s.admins[u.ID] = isAdmin
}

func (s *MemoryStore) Conversations() ConversationRepository { return memoryConversationRepository{s} }
func (s *MemoryStore) Messages() MessageRepository           { return memoryMessageRepository{s} }
func (s *MemoryStore) Users() UserRepository                 { return memoryUserRepository{s} }

type memoryConversationRepository struct{ s *MemoryStore }

func (r memoryConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = conversation.StatusOpen
	}
	if _, exists := r.s.conversations[c.ID]; exists {
		return support_errors.ErrConflict
	}
	if c.Status == conversation.StatusOpen && r.s.hasOpenLocked(c.UserID, uuid.Nil) {
		return support_errors.ErrConflict
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.s.now()
	}
	c.UpdatedAt = c.CreatedAt
	c.LastMessageAt = c.CreatedAt
	r.s.conversations[c.ID] = *c
	return nil
}

func (s *MemoryStore) hasOpenLocked(owner, except uuid.UUID) bool {
	for _, c := range s.conversations {
		if c.ID != except && c.UserID == owner && c.Status == conversation.StatusOpen {
			return true
		}
	}
	return false
}

func (r memoryConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return conversation.Conversation{}, support_errors.ErrNotFound
	}
	return c, nil
}

func (r memoryConversationRepository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.conversations {
		if c.UserID == userID && c.Status == conversation.StatusOpen {
			return c, nil
		}
	}
	return conversation.Conversation{}, support_errors.ErrNotFound
}

func (r memoryConversationRepository) ListByActivity(ctx context.Context) ([]conversation.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]conversation.Conversation, 0, len(r.s.conversations))
	for _, c := range r.s.conversations {
		items = append(items, c)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].LastMessageAt.Equal(items[j].LastMessageAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].LastMessageAt.After(items[j].LastMessageAt)
	})
	return items, nil
}

func (r memoryConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status conversation.Status) (conversation.Conversation, error) {
	if !status.Valid() {
		return conversation.Conversation{}, support_errors.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return conversation.Conversation{}, support_errors.ErrNotFound
	}
	if status == conversation.StatusOpen && r.s.hasOpenLocked(c.UserID, id) {
		return conversation.Conversation{}, support_errors.ErrConflict
	}
	c.Status = status
	c.UpdatedAt = r.s.now()
	r.s.conversations[id] = c
	return c, nil
}

func (r memoryConversationRepository) Delete(ctx context.Context, id uuid.UUID) (conversation.Conversation, []message.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return conversation.Conversation{}, nil, support_errors.ErrNotFound
	}
	removed := r.s.messages[id]
	delete(r.s.messages, id)
	delete(r.s.conversations, id)
	return c, removed, nil
}

type memoryMessageRepository struct{ s *MemoryStore }

// Create appends m and bumps the conversation's activity timestamps.
func (r memoryMessageRepository) Create(ctx context.Context, m *message.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[m.ConversationID]
	if !ok {
		return support_errors.ErrNotFound
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.s.now()
	}
	r.s.messages[m.ConversationID] = append(r.s.messages[m.ConversationID], *m)
	if m.CreatedAt.After(c.LastMessageAt) {
		c.LastMessageAt = m.CreatedAt
	}
	c.UpdatedAt = m.CreatedAt
	r.s.conversations[c.ID] = c
	return nil
}

func (r memoryMessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := append([]message.Message{}, r.s.messages[conversationID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

type memoryUserRepository struct{ s *MemoryStore }

func (r memoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, support_errors.ErrNotFound
	}
	return u, nil
}

func (r memoryUserRepository) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.admins[userID], nil
}
