package chatsync

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/events"
	"support-chat/pkg/logger"
)

// Inbox is the admin's list of every conversation, most recent activity
// first, each annotated with its owner's label. It is rebuilt by a full
// re-fetch; refreshes requested while one is running collapse into a
// single follow-up.
type Inbox struct {
	store    Store
	log      *logger.Logger
	onChange func([]conversation.Summary)

	mu      sync.Mutex
	items   []conversation.Summary
	labels  map[uuid.UUID]string
	running bool
	pending bool
}

func NewInbox(store Store, l *logger.Logger, onChange func([]conversation.Summary)) *Inbox {
	return &Inbox{
		store:    store,
		log:      logger.OrNop(l),
		onChange: onChange,
		items:    []conversation.Summary{},
		labels:   make(map[uuid.UUID]string),
	}
}

// Refresh re-fetches the inbox. If a refresh is already running it only
// marks that one to run again and returns.
func (i *Inbox) Refresh(ctx context.Context) {
	i.mu.Lock()
	if i.running {
		i.pending = true
		i.mu.Unlock()
		return
	}
	i.running = true
	i.mu.Unlock()

	for {
		items := i.fetch(ctx)

		i.mu.Lock()
		i.items = items
		again := i.pending && ctx.Err() == nil
		i.pending = false
		if !again {
			i.running = false
		}
		i.mu.Unlock()

		if i.onChange != nil {
			i.onChange(cloneSummaries(items))
		}
		if !again {
			return
		}
	}
}

func (i *Inbox) fetch(ctx context.Context) []conversation.Summary {
	convs, err := i.store.ListConversations(ctx)
	if err != nil {
		i.log.Ctx(ctx).Warn("inbox fetch failed", zap.Error(err))
		return []conversation.Summary{}
	}

	items := make([]conversation.Summary, 0, len(convs))
	for _, c := range convs {
		items = append(items, conversation.Summary{
			Conversation: c,
			UserEmail:    i.label(ctx, c.UserID),
		})
	}
	return items
}

func (i *Inbox) label(ctx context.Context, owner uuid.UUID) string {
	i.mu.Lock()
	label, ok := i.labels[owner]
	i.mu.Unlock()
	if ok {
		return label
	}

	label, err := i.store.OwnerLabel(ctx, owner)
	if err != nil || label == "" {
		i.log.Ctx(ctx).Debug("owner label unavailable", zap.String("user_id", owner.String()), zap.Error(err))
		return conversation.UnknownLabel
	}

	i.mu.Lock()
	i.labels[owner] = label
	i.mu.Unlock()
	return label
}

// Items returns a copy of the last fetched list.
func (i *Inbox) Items() []conversation.Summary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return cloneSummaries(i.items)
}

// Triggers reports whether a feed event calls for a refresh: any change on
// the conversations feed, inserts only on the messages feed.
func Triggers(ev events.ChangeEvent) bool {
	switch ev.Table {
	case events.TableConversations:
		return true
	case events.TableMessages:
		return ev.Type == events.ChangeInsert
	default:
		return false
	}
}

func cloneSummaries(in []conversation.Summary) []conversation.Summary {
	out := make([]conversation.Summary, len(in))
	copy(out, in)
	return out
}
