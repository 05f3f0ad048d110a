package chatsync

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"support-chat/internal/domain/message"
	"support-chat/pkg/logger"
)

// LoadHistory fetches a conversation's messages in ascending creation order.
// A failed fetch yields an empty slice.
func LoadHistory(ctx context.Context, store Store, conversationID uuid.UUID, l *logger.Logger) []message.Message {
	msgs, err := store.ListMessages(ctx, conversationID)
	if err != nil {
		logger.OrNop(l).Ctx(ctx).Warn("load history",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
		return []message.Message{}
	}
	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
