package chatsync

import (
	"github.com/google/uuid"

	"support-chat/internal/domain/message"
)

// MessageLog is the ordered message list of one conversation, with an id set
// for membership. Pushed messages are appended at the tail even when older
// than the last entry. Not safe for concurrent use.
type MessageLog struct {
	items []message.Message
	ids   map[uuid.UUID]struct{}
}

// NewMessageLog builds a log from an initial, already ordered, snapshot.
func NewMessageLog(initial []message.Message) *MessageLog {
	l := &MessageLog{ids: make(map[uuid.UUID]struct{}, len(initial))}
	for _, m := range initial {
		l.Merge(m)
	}
	return l
}

// Merge appends m unless a message with the same id is present.
func (l *MessageLog) Merge(m message.Message) bool {
	if _, ok := l.ids[m.ID]; ok {
		return false
	}
	l.ids[m.ID] = struct{}{}
	l.items = append(l.items, m)
	return true
}

// Rebase replaces the log with snapshot and re-appends entries the snapshot
// does not contain yet, such as pushes that raced the fetch.
func (l *MessageLog) Rebase(snapshot []message.Message) {
	previous := l.items
	l.items = make([]message.Message, 0, len(snapshot)+len(previous))
	l.ids = make(map[uuid.UUID]struct{}, len(snapshot)+len(previous))
	for _, m := range snapshot {
		l.Merge(m)
	}
	for _, m := range previous {
		l.Merge(m)
	}
}

// Messages returns a copy of the log.
func (l *MessageLog) Messages() []message.Message {
	out := make([]message.Message, len(l.items))
	copy(out, l.items)
	return out
}
