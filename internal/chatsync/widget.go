package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/events"
	support_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
)

// WidgetState is what the customer chat view renders.
type WidgetState struct {
	ConversationID uuid.UUID
	Status         conversation.Status
	Messages       []message.Message
	Loading        bool
	Sending        bool
}

// CanSend reports whether the input should be enabled.
func (s WidgetState) CanSend() bool {
	return s.ConversationID != uuid.Nil && s.Status == conversation.StatusOpen && !s.Sending
}

// CustomerWidget is one customer's chat session: it resolves the open
// conversation, loads its history, follows pushed messages and status and
// sends on the customer's behalf.
type CustomerWidget struct {
	store  Store
	userID uuid.UUID
	opts   Options
	log    *logger.Logger
	subs   *Subscriptions

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	convID   uuid.UUID
	status   conversation.Status
	messages *MessageLog
	loading  bool
	sending  bool
	poller   *StatusSync
	closed   bool
	onChange func(WidgetState)
}

func NewCustomerWidget(store Store, bus Bus, userID uuid.UUID, opts Options) *CustomerWidget {
	ctx, cancel := context.WithCancel(context.Background())
	log := opts.logger().With(zap.String("user_id", userID.String()))
	return &CustomerWidget{
		store:    store,
		userID:   userID,
		opts:     opts,
		log:      log,
		subs:     NewSubscriptions(bus, log),
		ctx:      ctx,
		cancel:   cancel,
		messages: NewMessageLog(nil),
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// fn runs without the widget lock held and may call State.
func (w *CustomerWidget) OnChange(fn func(WidgetState)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Open resolves the customer's conversation and starts following it. A
// poller left by an earlier Open is stopped first.
// Subscriptions are opened before the history fetch so nothing committed in
// between is missed; the fetched snapshot is then rebased under any pushes
// that already arrived. It reports false when there is no identity, the
// conversation cannot be resolved or the widget was closed meanwhile.
func (w *CustomerWidget) Open(ctx context.Context) bool {
	if w.userID == uuid.Nil {
		return false
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.gen++
	gen := w.gen
	w.loading = true
	prev := w.poller
	w.poller = nil
	w.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	w.notify()

	convID, ok := ResolveConversation(ctx, w.store, w.userID, w.log)
	if !ok {
		w.finishLoading(gen)
		return false
	}

	status := conversation.StatusOpen
	if conv, err := w.store.GetConversation(ctx, convID); err == nil {
		status = conv.Status
	} else {
		w.log.Ctx(ctx).Warn("fetch conversation", zap.String("conversation_id", convID.String()), zap.Error(err))
	}

	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		return false
	}
	w.convID = convID
	w.status = status
	w.messages = NewMessageLog(nil)
	w.mu.Unlock()

	_ = w.subs.Open(ctx, ScopeConversationMessages, convID, w.messageHandler(gen, convID))
	_ = w.subs.Open(ctx, ScopeConversationStatus, convID, w.statusHandler(gen))

	history := LoadHistory(ctx, w.store, convID, w.log)

	w.mu.Lock()
	if !w.currentLocked(gen) {
		w.mu.Unlock()
		return false
	}
	w.messages.Rebase(history)
	w.loading = false
	ss := NewStatusSync(w.status, w.opts.pollInterval(), w.fetchStatus(convID), w.statusChanged(gen), w.log)
	w.poller = ss
	w.mu.Unlock()

	ss.Start(w.ctx)
	w.notify()
	return true
}

// Send posts text as the customer. The confirmed message is merged at once;
// its push echo is then dropped as a duplicate.
func (w *CustomerWidget) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || w.userID == uuid.Nil {
		return false
	}

	w.mu.Lock()
	if w.closed || w.sending || w.convID == uuid.Nil || w.status != conversation.StatusOpen {
		w.mu.Unlock()
		return false
	}
	gen := w.gen
	convID := w.convID
	w.sending = true
	w.mu.Unlock()
	w.notify()

	msg, err := w.store.SendMessage(ctx, convID, w.userID, text, false)

	w.mu.Lock()
	if w.currentLocked(gen) {
		w.sending = false
		if err == nil {
			w.messages.Merge(msg)
		}
	}
	w.mu.Unlock()
	w.notify()

	if err != nil {
		w.log.Ctx(ctx).Warn("send failed", zap.String("conversation_id", convID.String()), zap.Error(err))
		return false
	}
	return true
}

// StartNew abandons the current conversation and resolves again. When the
// old one was reopened in the meantime the resolver finds it.
func (w *CustomerWidget) StartNew(ctx context.Context) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.gen++
	ss := w.poller
	w.poller = nil
	w.convID = uuid.Nil
	w.status = ""
	w.messages = NewMessageLog(nil)
	w.sending = false
	w.mu.Unlock()

	if ss != nil {
		ss.Stop()
	}
	w.subs.Close(ScopeConversationMessages)
	w.subs.Close(ScopeConversationStatus)
	w.notify()

	return w.Open(ctx)
}

// Close tears the widget down without waiting on the network: the poller is
// stopped, every subscription closed and in-flight work discarded.
// Idempotent.
func (w *CustomerWidget) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.gen++
	ss := w.poller
	w.poller = nil
	w.mu.Unlock()

	if ss != nil {
		ss.Stop()
	}
	w.subs.CloseAll()
	w.cancel()
}

func (w *CustomerWidget) State() WidgetState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// Polling reports whether the status backstop is running.
func (w *CustomerWidget) Polling() bool {
	w.mu.Lock()
	ss := w.poller
	w.mu.Unlock()
	return ss != nil && ss.Polling()
}

func (w *CustomerWidget) stateLocked() WidgetState {
	return WidgetState{
		ConversationID: w.convID,
		Status:         w.status,
		Messages:       w.messages.Messages(),
		Loading:        w.loading,
		Sending:        w.sending,
	}
}

func (w *CustomerWidget) messageHandler(gen uint64, convID uuid.UUID) events.Handler {
	return func(ev events.ChangeEvent) {
		if ev.Type != events.ChangeInsert {
			return
		}
		var m message.Message
		if err := ev.Decode(&m); err != nil || m.ConversationID != convID {
			return
		}

		w.mu.Lock()
		if !w.currentLocked(gen) {
			w.mu.Unlock()
			return
		}
		added := w.messages.Merge(m)
		w.mu.Unlock()

		if !added {
			w.log.Logger.Debug("duplicate message dropped", zap.String("message_id", m.ID.String()))
			return
		}
		w.notify()
	}
}

func (w *CustomerWidget) statusHandler(gen uint64) events.Handler {
	return func(ev events.ChangeEvent) {
		status, ok := statusFromEvent(ev)
		if !ok {
			return
		}

		w.mu.Lock()
		ss := w.poller
		current := w.currentLocked(gen)
		w.mu.Unlock()

		if !current {
			return
		}
		if ss == nil {
			// History still loading: record it so the synchronizer starts
			// from the pushed value.
			w.mu.Lock()
			if w.currentLocked(gen) && w.status != conversation.StatusClosed {
				w.status = status
			}
			w.mu.Unlock()
			w.notify()
			return
		}
		ss.Observe(status)
	}
}

func (w *CustomerWidget) statusChanged(gen uint64) func(conversation.Status) {
	return func(status conversation.Status) {
		w.mu.Lock()
		if !w.currentLocked(gen) {
			w.mu.Unlock()
			return
		}
		w.status = status
		w.mu.Unlock()
		w.notify()
	}
}

func (w *CustomerWidget) fetchStatus(convID uuid.UUID) StatusFetcher {
	return func(ctx context.Context) (conversation.Status, error) {
		conv, err := w.store.GetConversation(ctx, convID)
		if errors.Is(err, support_errors.ErrNotFound) {
			return conversation.StatusClosed, nil
		}
		if err != nil {
			return "", err
		}
		return conv.Status, nil
	}
}

func (w *CustomerWidget) finishLoading(gen uint64) {
	w.mu.Lock()
	if w.currentLocked(gen) {
		w.loading = false
	}
	w.mu.Unlock()
	w.notify()
}

func (w *CustomerWidget) currentLocked(gen uint64) bool {
	return !w.closed && w.gen == gen
}

func (w *CustomerWidget) notify() {
	w.mu.Lock()
	fn := w.onChange
	if fn == nil || w.closed {
		w.mu.Unlock()
		return
	}
	state := w.stateLocked()
	w.mu.Unlock()
	fn(state)
}

// statusFromEvent maps a status channel event to the conversation status it
// reports. A deleted conversation reads as closed.
func statusFromEvent(ev events.ChangeEvent) (conversation.Status, bool) {
	if ev.Type == events.ChangeDelete {
		return conversation.StatusClosed, true
	}
	var conv conversation.Conversation
	if err := ev.Decode(&conv); err != nil || !conv.Status.Valid() {
		return "", false
	}
	return conv.Status, true
}
