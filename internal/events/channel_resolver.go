package events

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Channel names. Conversation scoped channels carry the conversation id.
const (
	ChannelPrefixConversation = "channel:conversation:"
	ChannelConversationsFeed  = "channel:conversations"
	ChannelMessagesFeed       = "channel:messages"

	suffixMessages = ":messages"
	suffixStatus   = ":status"
)

func ConversationMessagesChannel(conversationID uuid.UUID) string {
	return ChannelPrefixConversation + conversationID.String() + suffixMessages
}

func ConversationStatusChannel(conversationID uuid.UUID) string {
	return ChannelPrefixConversation + conversationID.String() + suffixStatus
}

// ChannelKind classifies a channel name.
type ChannelKind int

const (
	KindUnknown ChannelKind = iota
	KindConversationMessages
	KindConversationStatus
	KindConversationsFeed
	KindMessagesFeed
)

// ParseChannel returns the kind of channel and, for conversation scoped
// channels, the conversation id.
func ParseChannel(channel string) (ChannelKind, uuid.UUID) {
	switch channel {
	case ChannelConversationsFeed:
		return KindConversationsFeed, uuid.Nil
	case ChannelMessagesFeed:
		return KindMessagesFeed, uuid.Nil
	}
	if !strings.HasPrefix(channel, ChannelPrefixConversation) {
		return KindUnknown, uuid.Nil
	}
	rest := strings.TrimPrefix(channel, ChannelPrefixConversation)
	kind := KindUnknown
	switch {
	case strings.HasSuffix(rest, suffixMessages):
		kind = KindConversationMessages
		rest = strings.TrimSuffix(rest, suffixMessages)
	case strings.HasSuffix(rest, suffixStatus):
		kind = KindConversationStatus
		rest = strings.TrimSuffix(rest, suffixStatus)
	default:
		return KindUnknown, uuid.Nil
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return KindUnknown, uuid.Nil
	}
	return kind, id
}

// ChannelResolver determines which channels an event is published to
type ChannelResolver interface {
	ResolveChannels(event ChangeEvent) []string
}

// TableChannelResolver routes row changes to the per-conversation channel and
// the matching global feed.
type TableChannelResolver struct{}

func NewTableChannelResolver() *TableChannelResolver {
	return &TableChannelResolver{}
}

type rowRef struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

func (r *TableChannelResolver) ResolveChannels(event ChangeEvent) []string {
	var ref rowRef
	raw := event.Record
	if len(raw) == 0 {
		raw = event.OldRecord
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &ref)
	}

	var channels []string
	switch event.Table {
	case TableMessages:
		if ref.ConversationID != uuid.Nil {
			channels = append(channels, ConversationMessagesChannel(ref.ConversationID))
		}
		channels = append(channels, ChannelMessagesFeed)
	case TableConversations:
		if ref.ID != uuid.Nil {
			channels = append(channels, ConversationStatusChannel(ref.ID))
		}
		channels = append(channels, ChannelConversationsFeed)
	}
	return channels
}
