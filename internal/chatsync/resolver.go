package chatsync

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	support_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
)

// ResolveConversation returns the id of userID's open conversation, creating
// one when none exists. It reports false for an absent identity (without
// touching the store) and when creation fails. A create rejected with
// ErrConflict means a concurrent resolver won; the winner is re-read once.
func ResolveConversation(ctx context.Context, store Store, userID uuid.UUID, l *logger.Logger) (uuid.UUID, bool) {
	if userID == uuid.Nil {
		return uuid.Nil, false
	}
	log := logger.OrNop(l)

	conv, err := store.FindOpenConversation(ctx, userID)
	if err == nil {
		return conv.ID, true
	}
	if !errors.Is(err, support_errors.ErrNotFound) {
		log.Ctx(ctx).Warn("find open conversation", zap.String("user_id", userID.String()), zap.Error(err))
	}

	conv, err = store.CreateConversation(ctx, userID)
	if err == nil {
		log.Ctx(ctx).Info("conversation created", zap.String("conversation_id", conv.ID.String()))
		return conv.ID, true
	}
	if !errors.Is(err, support_errors.ErrConflict) {
		log.Ctx(ctx).Warn("create conversation", zap.String("user_id", userID.String()), zap.Error(err))
		return uuid.Nil, false
	}

	conv, err = store.FindOpenConversation(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn("re-read after conflict", zap.String("user_id", userID.String()), zap.Error(err))
		return uuid.Nil, false
	}
	return conv.ID, true
}
