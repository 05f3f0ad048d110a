package chatsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/domain/user"
	"support-chat/internal/events"
	"support-chat/internal/repository"
	"support-chat/internal/services"
)

var errStoreDown = errors.New("store unavailable")

// testEnv wires the in-process store and bus the server uses.
type testEnv struct {
	repo *repository.MemoryStore
	svc  *services.SupportService
	bus  *countingBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := repository.NewMemoryStore()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	repo.SetClock(func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})
	mem := events.NewMemoryBus(nil)
	svc := services.NewSupportService(
		repo.Conversations(),
		repo.Messages(),
		repo.Users(),
		services.NewEventPublisher(mem, nil),
		nil,
	)
	return &testEnv{repo: repo, svc: svc, bus: newCountingBus(mem)}
}

func (e *testEnv) customer(email string) uuid.UUID {
	id := uuid.New()
	e.repo.PutUser(user.User{ID: id, Email: email}, false)
	return id
}

func (e *testEnv) admin() uuid.UUID {
	id := uuid.New()
	e.repo.PutUser(user.User{ID: id, Email: "soporte@tienda.local"}, true)
	return id
}

// faultyStore wraps a Store and fails selected operations.
type faultyStore struct {
	Store

	mu            sync.Mutex
	failCreate    error
	failFind      error
	failList      error
	failSend      error
	failLabel     map[uuid.UUID]bool
	messages      []message.Message
	findCalls     int
	createCalls   int
	sendCalls     int
	listConvCalls int
	listConvGate  chan struct{}
}

func (f *faultyStore) CreateConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	f.mu.Lock()
	f.createCalls++
	err := f.failCreate
	f.mu.Unlock()
	if err != nil {
		return conversation.Conversation{}, err
	}
	return f.Store.CreateConversation(ctx, owner)
}

func (f *faultyStore) FindOpenConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	f.mu.Lock()
	f.findCalls++
	err := f.failFind
	f.mu.Unlock()
	if err != nil {
		return conversation.Conversation{}, err
	}
	return f.Store.FindOpenConversation(ctx, owner)
}

func (f *faultyStore) ListMessages(ctx context.Context, id uuid.UUID) ([]message.Message, error) {
	f.mu.Lock()
	err, canned := f.failList, f.messages
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if canned != nil {
		return canned, nil
	}
	return f.Store.ListMessages(ctx, id)
}

func (f *faultyStore) SendMessage(ctx context.Context, id, sender uuid.UUID, content string, isAdmin bool) (message.Message, error) {
	f.mu.Lock()
	f.sendCalls++
	err := f.failSend
	f.mu.Unlock()
	if err != nil {
		return message.Message{}, err
	}
	return f.Store.SendMessage(ctx, id, sender, content, isAdmin)
}

func (f *faultyStore) OwnerLabel(ctx context.Context, owner uuid.UUID) (string, error) {
	f.mu.Lock()
	fail := f.failLabel[owner]
	f.mu.Unlock()
	if fail {
		return "", errStoreDown
	}
	return f.Store.OwnerLabel(ctx, owner)
}

func (f *faultyStore) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	f.mu.Lock()
	f.listConvCalls++
	gate := f.listConvGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.Store.ListConversations(ctx)
}

func (f *faultyStore) set(fn func(f *faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// countingBus tracks live subscriptions per channel and the highest number
// ever open at once.
type countingBus struct {
	inner events.Subscriber

	mu   sync.Mutex
	live map[string]int
	peak map[string]int
	fail error
}

func newCountingBus(inner events.Subscriber) *countingBus {
	return &countingBus{inner: inner, live: make(map[string]int), peak: make(map[string]int)}
}

func (b *countingBus) Subscribe(ctx context.Context, channel string, handler events.Handler) (events.Subscription, error) {
	b.mu.Lock()
	err := b.fail
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sub, err := b.inner.Subscribe(ctx, channel, handler)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.live[channel]++
	if b.live[channel] > b.peak[channel] {
		b.peak[channel] = b.live[channel]
	}
	b.mu.Unlock()
	return &countedSubscription{Subscription: sub, bus: b, channel: channel}, nil
}

func (b *countingBus) Live(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[channel]
}

func (b *countingBus) Peak(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak[channel]
}

type countedSubscription struct {
	events.Subscription
	bus     *countingBus
	channel string
	once    sync.Once
}

func (s *countedSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		s.bus.live[s.channel]--
		s.bus.mu.Unlock()
	})
	return s.Subscription.Close()
}

// gatedBus holds every Subscribe call until release is closed.
type gatedBus struct {
	inner   events.Subscriber
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBus) Subscribe(ctx context.Context, channel string, handler events.Handler) (events.Subscription, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.inner.Subscribe(ctx, channel, handler)
}

func msgAt(conv uuid.UUID, content string, at time.Time) message.Message {
	return message.Message{
		ID:             uuid.New(),
		ConversationID: conv,
		SenderID:       uuid.New(),
		Content:        content,
		CreatedAt:      at,
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}
