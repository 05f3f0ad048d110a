package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	support_errors "support-chat/pkg/errors"
)

func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestMemoryStoreOneOpenPerOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	convs := store.Conversations()
	owner := uuid.New()

	first := conversation.Conversation{UserID: owner}
	if err := convs.Create(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := conversation.Conversation{UserID: owner}
	if err := convs.Create(ctx, &second); !errors.Is(err, support_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := convs.UpdateStatus(ctx, first.ID, conversation.StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := convs.Create(ctx, &second); err != nil {
		t.Fatalf("create after close: %v", err)
	}
	if _, err := convs.UpdateStatus(ctx, first.ID, conversation.StatusOpen); !errors.Is(err, support_errors.ErrConflict) {
		t.Fatalf("expected reopen conflict, got %v", err)
	}
}

func TestMemoryStoreMessagesAndCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(steppingClock())
	convs, msgs := store.Conversations(), store.Messages()

	older := conversation.Conversation{UserID: uuid.New()}
	newer := conversation.Conversation{UserID: uuid.New()}
	_ = convs.Create(ctx, &older)
	_ = convs.Create(ctx, &newer)

	m := message.Message{ConversationID: older.ID, SenderID: older.UserID, Content: "hola"}
	if err := msgs.Create(ctx, &m); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, _ := convs.ListByActivity(ctx)
	if len(list) != 2 || list[0].ID != older.ID {
		t.Fatalf("expected conversation with the latest message first")
	}

	orphan := message.Message{ConversationID: uuid.New(), Content: "x"}
	if err := msgs.Create(ctx, &orphan); !errors.Is(err, support_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, removed, err := convs.Delete(ctx, older.ID)
	if err != nil || len(removed) != 1 {
		t.Fatalf("expected 1 removed message, got %d (%v)", len(removed), err)
	}
	left, _ := msgs.ListByConversation(ctx, older.ID)
	if len(left) != 0 {
		t.Fatalf("expected cascade, %d messages left", len(left))
	}
	if _, err := convs.GetByID(ctx, older.ID); !errors.Is(err, support_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
