package chatsync

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/events"
	"support-chat/pkg/logger"
)

// ConsoleState is what the admin view renders.
type ConsoleState struct {
	Inbox          []conversation.Summary
	Selected       uuid.UUID
	SelectedStatus conversation.Status
	Messages       []message.Message
	Draft          string
	Loading        bool
	Sending        bool
	Deleting       bool
}

// AdminConsole is the support agent's session: the inbox, one selected
// conversation with its messages, and the moderation actions.
type AdminConsole struct {
	store   Store
	adminID uuid.UUID
	log     *logger.Logger
	subs    *Subscriptions
	inbox   *Inbox

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	selGen         uint64
	selected       uuid.UUID
	selectedStatus conversation.Status
	messages       *MessageLog
	draft          string
	loading        bool
	sending        bool
	deleting       bool
	closed         bool
	onChange       func(ConsoleState)
}

func NewAdminConsole(store Store, bus Bus, adminID uuid.UUID, opts Options) *AdminConsole {
	ctx, cancel := context.WithCancel(context.Background())
	log := opts.logger().With(zap.String("admin_id", adminID.String()))
	c := &AdminConsole{
		store:    store,
		adminID:  adminID,
		log:      log,
		subs:     NewSubscriptions(bus, log),
		ctx:      ctx,
		cancel:   cancel,
		messages: NewMessageLog(nil),
	}
	c.inbox = NewInbox(store, log, func([]conversation.Summary) { c.notify() })
	return c
}

func (c *AdminConsole) OnChange(fn func(ConsoleState)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Open subscribes to both global feeds and loads the inbox.
func (c *AdminConsole) Open(ctx context.Context) {
	if c.isClosed() {
		return
	}
	feed := func(ev events.ChangeEvent) {
		if Triggers(ev) && !c.isClosed() {
			c.inbox.Refresh(c.ctx)
		}
	}
	_ = c.subs.Open(ctx, ScopeConversationsFeed, uuid.Nil, feed)
	_ = c.subs.Open(ctx, ScopeMessagesFeed, uuid.Nil, feed)
	c.inbox.Refresh(ctx)
}

func (c *AdminConsole) RefreshInbox(ctx context.Context) {
	if c.isClosed() {
		return
	}
	c.inbox.Refresh(ctx)
}

// Select makes id the open conversation: its message and status scopes are
// switched over (old handles closed first) and its history loaded.
// uuid.Nil clears the selection.
func (c *AdminConsole) Select(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.selGen++
	gen := c.selGen
	c.selected = id
	c.selectedStatus = ""
	c.messages = NewMessageLog(nil)
	c.draft = ""
	c.loading = id != uuid.Nil
	c.mu.Unlock()
	c.notify()

	if id == uuid.Nil {
		c.subs.Close(ScopeConversationMessages)
		c.subs.Close(ScopeConversationStatus)
		return
	}

	_ = c.subs.Open(ctx, ScopeConversationMessages, id, c.messageHandler(gen, id))
	_ = c.subs.Open(ctx, ScopeConversationStatus, id, c.statusHandler(gen))

	status := conversation.Status("")
	if conv, err := c.store.GetConversation(ctx, id); err == nil {
		status = conv.Status
	} else {
		c.log.Ctx(ctx).Warn("fetch conversation", zap.String("conversation_id", id.String()), zap.Error(err))
	}
	history := LoadHistory(ctx, c.store, id, c.log)

	c.mu.Lock()
	if c.currentLocked(gen) {
		if c.selectedStatus == "" {
			c.selectedStatus = status
		}
		c.messages.Rebase(history)
		c.loading = false
	}
	c.mu.Unlock()
	c.notify()
}

// RefreshMessages re-fetches the selected conversation's history and merges
// it with what was pushed.
func (c *AdminConsole) RefreshMessages(ctx context.Context) {
	c.mu.Lock()
	gen, id := c.selGen, c.selected
	c.mu.Unlock()
	if id == uuid.Nil {
		return
	}

	history := LoadHistory(ctx, c.store, id, c.log)

	c.mu.Lock()
	if c.currentLocked(gen) {
		c.messages.Rebase(history)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *AdminConsole) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.notify()
}

// Send posts text as support into the selected conversation. The draft is
// cleared up front and put back if the store rejects the message.
func (c *AdminConsole) Send(ctx context.Context, text string) bool {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if c.closed || c.sending || c.selected == uuid.Nil || trimmed == "" || c.selectedStatus == conversation.StatusClosed {
		c.mu.Unlock()
		return false
	}
	gen, id := c.selGen, c.selected
	c.draft = ""
	c.sending = true
	c.mu.Unlock()
	c.notify()

	msg, err := c.store.SendMessage(ctx, id, c.adminID, trimmed, true)

	c.mu.Lock()
	c.sending = false
	if c.currentLocked(gen) {
		if err != nil {
			c.draft = text
		} else {
			c.messages.Merge(msg)
		}
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.log.Ctx(ctx).Warn("send failed", zap.String("conversation_id", id.String()), zap.Error(err))
		return false
	}
	return true
}

// CloseConversation marks id closed. Closing the selected conversation
// clears the selection.
func (c *AdminConsole) CloseConversation(ctx context.Context, id uuid.UUID) bool {
	if !c.setStatus(ctx, id, conversation.StatusClosed) {
		return false
	}
	c.deselect(id)
	c.RefreshInbox(ctx)
	return true
}

// Reopen marks id open again. It fails when the owner already has another
// open conversation.
func (c *AdminConsole) Reopen(ctx context.Context, id uuid.UUID) bool {
	if !c.setStatus(ctx, id, conversation.StatusOpen) {
		return false
	}
	c.mu.Lock()
	if c.selected == id && !c.closed {
		c.selectedStatus = conversation.StatusOpen
	}
	c.mu.Unlock()
	c.RefreshInbox(ctx)
	return true
}

// Delete removes id and its messages.
func (c *AdminConsole) Delete(ctx context.Context, id uuid.UUID) bool {
	c.mu.Lock()
	if c.closed || c.deleting {
		c.mu.Unlock()
		return false
	}
	c.deleting = true
	c.mu.Unlock()
	c.notify()

	err := c.store.DeleteConversation(ctx, id)

	c.mu.Lock()
	c.deleting = false
	c.mu.Unlock()

	if err != nil {
		c.log.Ctx(ctx).Warn("delete failed", zap.String("conversation_id", id.String()), zap.Error(err))
		c.notify()
		return false
	}
	c.log.Ctx(ctx).Info("conversation deleted", zap.String("conversation_id", id.String()))
	c.deselect(id)
	c.RefreshInbox(ctx)
	return true
}

// Close tears the console down synchronously. Idempotent.
func (c *AdminConsole) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.selGen++
	c.mu.Unlock()

	c.subs.CloseAll()
	c.cancel()
}

func (c *AdminConsole) State() ConsoleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *AdminConsole) stateLocked() ConsoleState {
	return ConsoleState{
		Inbox:          c.inbox.Items(),
		Selected:       c.selected,
		SelectedStatus: c.selectedStatus,
		Messages:       c.messages.Messages(),
		Draft:          c.draft,
		Loading:        c.loading,
		Sending:        c.sending,
		Deleting:       c.deleting,
	}
}

func (c *AdminConsole) setStatus(ctx context.Context, id uuid.UUID, status conversation.Status) bool {
	if id == uuid.Nil || c.isClosed() {
		return false
	}
	if err := c.store.UpdateConversationStatus(ctx, id, status); err != nil {
		c.log.Ctx(ctx).Warn("status update failed",
			zap.String("conversation_id", id.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return false
	}
	return true
}

func (c *AdminConsole) deselect(id uuid.UUID) {
	c.mu.Lock()
	selected := c.selected == id && !c.closed
	c.mu.Unlock()
	if selected {
		c.Select(c.ctx, uuid.Nil)
	}
}

func (c *AdminConsole) messageHandler(gen uint64, id uuid.UUID) events.Handler {
	return func(ev events.ChangeEvent) {
		if ev.Type != events.ChangeInsert {
			return
		}
		var m message.Message
		if err := ev.Decode(&m); err != nil || m.ConversationID != id {
			return
		}

		c.mu.Lock()
		if !c.currentLocked(gen) {
			c.mu.Unlock()
			return
		}
		added := c.messages.Merge(m)
		c.mu.Unlock()

		if added {
			c.notify()
		}
	}
}

func (c *AdminConsole) statusHandler(gen uint64) events.Handler {
	return func(ev events.ChangeEvent) {
		status, ok := statusFromEvent(ev)
		if !ok {
			return
		}
		c.mu.Lock()
		if !c.currentLocked(gen) || c.selectedStatus == status {
			c.mu.Unlock()
			return
		}
		c.selectedStatus = status
		c.mu.Unlock()
		c.notify()
	}
}

func (c *AdminConsole) currentLocked(gen uint64) bool {
	return !c.closed && c.selGen == gen
}

func (c *AdminConsole) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *AdminConsole) notify() {
	c.mu.Lock()
	fn := c.onChange
	if fn == nil || c.closed {
		c.mu.Unlock()
		return
	}
	state := c.stateLocked()
	c.mu.Unlock()
	fn(state)
}
