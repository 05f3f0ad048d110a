package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/repository"
)

// racingConversations lets a test run code right before an insert, standing
// in for a concurrent resolver.
type racingConversations struct {
	repository.ConversationRepository
	beforeCreate func()
}

func (r *racingConversations) Create(ctx context.Context, c *conversation.Conversation) error {
	if hook := r.beforeCreate; hook != nil {
		r.beforeCreate = nil
		hook()
	}
	return r.ConversationRepository.Create(ctx, c)
}

func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type fakeLabelCache struct {
	mu     sync.Mutex
	labels map[uuid.UUID]string
	hits   int
}

func (c *fakeLabelCache) GetLabel(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.labels[userID]
	if ok {
		c.hits++
	}
	return l, ok, nil
}

func (c *fakeLabelCache) SetLabel(ctx context.Context, userID uuid.UUID, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.labels == nil {
		c.labels = make(map[uuid.UUID]string)
	}
	c.labels[userID] = label
	return nil
}

type fakeArchiver struct {
	archived map[uuid.UUID]int
	err      error
}

func (a *fakeArchiver) ArchiveTranscript(ctx context.Context, conv conversation.Conversation, msgs []message.Message) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.archived == nil {
		a.archived = make(map[uuid.UUID]int)
	}
	a.archived[conv.ID] = len(msgs)
	return "transcripts/" + conv.ID.String() + ".json", nil
}
