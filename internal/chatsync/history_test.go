package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/message"
)

func TestLoadHistoryIsNonDecreasing(t *testing.T) {
	env := newTestEnv(t)
	conv := uuid.New()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	canned := []message.Message{
		msgAt(conv, "third", base.Add(3*time.Second)),
		msgAt(conv, "first", base),
		msgAt(conv, "second-a", base.Add(time.Second)),
		msgAt(conv, "second-b", base.Add(time.Second)),
	}
	store := &faultyStore{Store: env.svc, messages: canned}

	got := LoadHistory(context.Background(), store, conv, nil)

	if len(got) != len(canned) {
		t.Fatalf("expected %d messages, got %d", len(canned), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("message %d (%s) is older than its predecessor", i, got[i].Content)
		}
	}
	if got[1].Content != "second-a" || got[2].Content != "second-b" {
		t.Errorf("equal timestamps must keep store order, got %q, %q", got[1].Content, got[2].Content)
	}
}

func TestLoadHistoryFromStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.customer("cliente@tienda.local")
	conv, err := env.svc.CreateConversation(ctx, owner)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, text := range []string{"uno", "dos", "tres"} {
		if _, err := env.svc.SendMessage(ctx, conv.ID, owner, text, false); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	got := LoadHistory(ctx, env.svc, conv.ID, nil)
	if len(got) != 3 || got[0].Content != "uno" || got[2].Content != "tres" {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestLoadHistoryDegradesToEmpty(t *testing.T) {
	env := newTestEnv(t)
	store := &faultyStore{Store: env.svc, failList: errStoreDown}

	got := LoadHistory(context.Background(), store, uuid.New(), nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestLoadHistoryEmptyConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv, err := env.svc.CreateConversation(ctx, env.customer("vacio@tienda.local"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := LoadHistory(ctx, env.svc, conv.ID, nil); len(got) != 0 {
		t.Fatalf("expected no messages, got %d", len(got))
	}
}
