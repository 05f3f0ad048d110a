package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"support-chat/config"
	"support-chat/internal/chatsync"
	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/user"
	"support-chat/internal/events"
	"support-chat/internal/repository"
	"support-chat/internal/server"
	"support-chat/internal/services"
	support_errors "support-chat/pkg/errors"
)

const testSecret = "client-test-secret"

type testEnv struct {
	ts       *httptest.Server
	memStore *repository.MemoryStore
	customer uuid.UUID
	admin    uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	env := &testEnv{memStore: store, customer: uuid.New(), admin: uuid.New()}
	store.PutUser(user.User{ID: env.customer, Email: "cliente@tienda.local"}, false)
	store.PutUser(user.User{ID: env.admin, Email: "soporte@tienda.local"}, true)

	cfg := &config.Config{AppMode: server.TestMode, AppPort: "0", JWTSecret: testSecret}
	app := server.NewApp(cfg, nil, server.Backend{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Users:         store.Users(),
		Bus:           events.NewMemoryBus(nil),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go app.Run(ctx)
	env.ts = httptest.NewServer(app.Server.Engine())
	t.Cleanup(func() {
		env.ts.Close()
		cancel()
	})
	return env
}

func (e *testEnv) token(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tok, err := services.SignAccessToken([]byte(testSecret), id, "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (e *testEnv) store(t *testing.T, id uuid.UUID) *StoreClient {
	t.Helper()
	c, err := NewStoreClient(e.ts.URL, e.token(t, id))
	if err != nil {
		t.Fatalf("store client: %v", err)
	}
	return c
}

func (e *testEnv) bus(t *testing.T, id uuid.UUID) *BusClient {
	t.Helper()
	b, err := DialBus(context.Background(), e.ts.URL, e.token(t, id), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func TestTokenSubject(t *testing.T) {
	id := uuid.New()
	tok, _ := services.SignAccessToken([]byte("x"), id, "a@b.c", time.Hour)
	got, err := TokenSubject(tok)
	if err != nil || got != id {
		t.Fatalf("got %s err=%v", got, err)
	}
	if _, err := TokenSubject("not-a-token"); err == nil {
		t.Fatal("expected an error for garbage")
	}
}

func TestStoreClientErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	customer := env.store(t, env.customer)

	if _, err := customer.FindOpenConversation(ctx, env.customer); !errors.Is(err, support_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := customer.CreateConversation(ctx, env.admin); !errors.Is(err, support_errors.ErrForbidden) {
		t.Fatalf("acting as someone else: %v", err)
	}
	conv, err := customer.CreateConversation(ctx, env.customer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := customer.CreateConversation(ctx, env.customer); !errors.Is(err, support_errors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := customer.UpdateConversationStatus(ctx, conv.ID, conversation.StatusClosed); !errors.Is(err, support_errors.ErrForbidden) {
		t.Fatalf("customer closed a conversation: %v", err)
	}

	admin := env.store(t, env.admin)
	if ok, err := admin.IsAdmin(ctx); err != nil || !ok {
		t.Fatalf("admin check: %v %v", ok, err)
	}
	if err := admin.UpdateConversationStatus(ctx, conv.ID, conversation.StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := customer.SendMessage(ctx, conv.ID, env.customer, "hola", false); !errors.Is(err, support_errors.ErrConversationClosed) {
		t.Fatalf("expected ErrConversationClosed, got %v", err)
	}
	label, err := admin.OwnerLabel(ctx, env.customer)
	if err != nil || label != "cliente@tienda.local" {
		t.Fatalf("label: %q %v", label, err)
	}
}

func TestBusClientForbiddenChannel(t *testing.T) {
	env := newTestEnv(t)
	b := env.bus(t, env.customer)

	_, err := b.Subscribe(context.Background(), events.ChannelConversationsFeed, func(events.ChangeEvent) {})
	if !errors.Is(err, support_errors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestBusClientSharesGatewaySubscription(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.store(t, env.admin)
	customer := env.store(t, env.customer)
	b := env.bus(t, env.admin)

	conv, err := customer.CreateConversation(ctx, env.customer)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	channel := events.ConversationMessagesChannel(conv.ID)

	got := make(chan string, 4)
	first, err := b.Subscribe(ctx, channel, func(ev events.ChangeEvent) { got <- "first" })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := b.Subscribe(ctx, channel, func(ev events.ChangeEvent) { got <- "second" })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = first.Close()
	_ = first.Close()

	if _, err := admin.SendMessage(ctx, conv.ID, env.admin, "hola", true); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case who := <-got:
		if who != "second" {
			t.Fatalf("closed handler received the event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remaining handler got nothing")
	}
	_ = second.Close()

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := b.Subscribe(ctx, channel, func(events.ChangeEvent) {}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestRemoteSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	opts := chatsync.Options{PollInterval: 20 * time.Millisecond}

	w := chatsync.NewCustomerWidget(env.store(t, env.customer), env.bus(t, env.customer), env.customer, opts)
	defer w.Close()
	if !w.Open(ctx) {
		t.Fatal("widget did not open")
	}
	conv := w.State().ConversationID

	c := chatsync.NewAdminConsole(env.store(t, env.admin), env.bus(t, env.admin), env.admin, opts)
	defer c.Close()
	c.Open(ctx)
	c.Select(ctx, conv)

	if !w.Send(ctx, "Hola, necesito ayuda") {
		t.Fatal("customer send failed")
	}
	eventually(t, func() bool { return len(c.State().Messages) == 1 }, "console never saw the customer message")
	eventually(t, func() bool {
		inbox := c.State().Inbox
		return len(inbox) == 1 && inbox[0].UserEmail == "cliente@tienda.local"
	}, "inbox not refreshed")

	if !c.Send(ctx, "¿En qué podemos ayudarte?") {
		t.Fatal("admin send failed")
	}
	eventually(t, func() bool {
		msgs := w.State().Messages
		return len(msgs) == 2 && msgs[1].IsAdmin
	}, "widget never saw the reply")

	if !c.CloseConversation(ctx, conv) {
		t.Fatal("close failed")
	}
	eventually(t, func() bool { return w.State().Status == conversation.StatusClosed }, "widget never saw the closure")
	eventually(t, func() bool { return !w.Polling() }, "poll not cancelled")

	if !c.Delete(ctx, conv) {
		t.Fatal("delete failed")
	}
	store := env.store(t, env.admin)
	if _, err := store.GetConversation(ctx, conv); !errors.Is(err, support_errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
