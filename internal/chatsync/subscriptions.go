package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/events"
	"support-chat/pkg/logger"
)

// Scope is the kind of feed a subscription is bound to.
type Scope int

const (
	ScopeConversationMessages Scope = iota
	ScopeConversationStatus
	ScopeConversationsFeed
	ScopeMessagesFeed
)

func (s Scope) String() string {
	switch s {
	case ScopeConversationMessages:
		return "conversation-messages"
	case ScopeConversationStatus:
		return "conversation-status"
	case ScopeConversationsFeed:
		return "conversations-feed"
	case ScopeMessagesFeed:
		return "messages-feed"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Channel returns the bus channel for the scope and key. Feeds ignore key.
func (s Scope) Channel(key uuid.UUID) string {
	switch s {
	case ScopeConversationMessages:
		return events.ConversationMessagesChannel(key)
	case ScopeConversationStatus:
		return events.ConversationStatusChannel(key)
	case ScopeConversationsFeed:
		return events.ChannelConversationsFeed
	case ScopeMessagesFeed:
		return events.ChannelMessagesFeed
	default:
		return ""
	}
}

var (
	// ErrSubscriptionsClosed is returned by Open after CloseAll.
	ErrSubscriptionsClosed = errors.New("subscriptions closed")
	// ErrSuperseded is returned by Open when the scope was replaced or
	// closed while the subscribe call was in flight; the late handle has
	// already been closed.
	ErrSuperseded = errors.New("subscription superseded")
)

// Subscriptions is the handle table of one session: at most one live
// subscription per scope. Each Open bumps the scope generation; handles and
// events that belong to an older generation are discarded.
type Subscriptions struct {
	bus Bus
	log *logger.Logger

	mu     sync.Mutex
	slots  map[Scope]*slot
	closed bool
}

type slot struct {
	gen    uint64
	key    uuid.UUID
	handle events.Subscription
}

func NewSubscriptions(bus Bus, l *logger.Logger) *Subscriptions {
	return &Subscriptions{
		bus:   bus,
		log:   logger.OrNop(l),
		slots: make(map[Scope]*slot),
	}
}

// Open closes the scope's current handle, then subscribes handler to the
// scope's channel for key. The previous handle is closed before the bus is
// asked for the new one. Failures are logged and not retried.
func (s *Subscriptions) Open(ctx context.Context, scope Scope, key uuid.UUID, handler events.Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSubscriptionsClosed
	}
	sl := s.slotLocked(scope)
	previous := sl.handle
	sl.handle = nil
	sl.gen++
	sl.key = key
	gen := sl.gen
	s.mu.Unlock()

	closeHandle(previous)

	channel := scope.Channel(key)
	fields := []zap.Field{zap.String("scope", scope.String()), zap.String("channel", channel)}

	handle, err := s.bus.Subscribe(ctx, channel, func(ev events.ChangeEvent) {
		if s.current(scope, gen) {
			handler(ev)
		}
	})
	if err != nil {
		s.log.Ctx(ctx).Warn("subscribe_error", append(fields, zap.Error(err))...)
		return err
	}

	s.mu.Lock()
	if s.closed || s.slotLocked(scope).gen != gen {
		s.mu.Unlock()
		closeHandle(handle)
		s.log.Ctx(ctx).Debug("late subscription closed", fields...)
		return ErrSuperseded
	}
	s.slotLocked(scope).handle = handle
	s.mu.Unlock()

	s.log.Ctx(ctx).Info("subscribed", fields...)
	return nil
}

// Close closes the scope's handle. Closing an empty scope is a no-op.
func (s *Subscriptions) Close(scope Scope) {
	s.mu.Lock()
	sl, ok := s.slots[scope]
	var handle events.Subscription
	if ok {
		sl.gen++
		sl.key = uuid.Nil
		handle = sl.handle
		sl.handle = nil
	}
	s.mu.Unlock()

	closeHandle(handle)
}

// CloseAll closes every handle and refuses further opens. Idempotent.
func (s *Subscriptions) CloseAll() {
	s.mu.Lock()
	s.closed = true
	handles := make([]events.Subscription, 0, len(s.slots))
	for _, sl := range s.slots {
		sl.gen++
		sl.key = uuid.Nil
		if sl.handle != nil {
			handles = append(handles, sl.handle)
			sl.handle = nil
		}
	}
	s.mu.Unlock()

	for _, h := range handles {
		closeHandle(h)
	}
}

// Active reports the key of the scope's live handle.
func (s *Subscriptions) Active(scope Scope) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[scope]
	if !ok || sl.handle == nil {
		return uuid.Nil, false
	}
	return sl.key, true
}

func (s *Subscriptions) current(scope Scope, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[scope]
	return ok && !s.closed && sl.gen == gen
}

func (s *Subscriptions) slotLocked(scope Scope) *slot {
	sl, ok := s.slots[scope]
	if !ok {
		sl = &slot{}
		s.slots[scope] = sl
	}
	return sl
}

func closeHandle(h events.Subscription) {
	if h != nil {
		_ = h.Close()
	}
}
