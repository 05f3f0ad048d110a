package websocket

import (
	"context"
	"errors"

	"support-chat/internal/events"
	"support-chat/internal/repository"
	support_errors "support-chat/pkg/errors"

	"github.com/google/uuid"
)

// ChannelAuthorizer handles authorization for WebSocket channel subscriptions
type ChannelAuthorizer struct {
	conversationRepo repository.ConversationRepository
}

func NewChannelAuthorizer(conversationRepo repository.ConversationRepository) *ChannelAuthorizer {
	return &ChannelAuthorizer{conversationRepo: conversationRepo}
}

// CanSubscribe reports whether the user may listen on channel. Global feeds
// are admin only; conversation channels need ownership or the admin role.
func (a *ChannelAuthorizer) CanSubscribe(ctx context.Context, userID uuid.UUID, isAdmin bool, channel string) (bool, error) {
	kind, convID := events.ParseChannel(channel)
	switch kind {
	case events.KindConversationsFeed, events.KindMessagesFeed:
		return isAdmin, nil
	case events.KindConversationMessages, events.KindConversationStatus:
		if isAdmin {
			return true, nil
		}
		conv, err := a.conversationRepo.GetByID(ctx, convID)
		if errors.Is(err, support_errors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return conv.UserID == userID, nil
	default:
		return false, nil
	}
}
