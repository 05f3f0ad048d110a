package services

import (
	"context"

	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/events"
	"support-chat/pkg/logger"
)

// EventPublisher turns committed row changes into change events on the bus.
// Rows are already committed when it runs, so publish failures are logged
// and never undo the mutation.
type EventPublisher struct {
	bus events.Publisher
	log *logger.Logger
}

func NewEventPublisher(bus events.Publisher, l *logger.Logger) *EventPublisher {
	return &EventPublisher{bus: bus, log: logger.OrNop(l).Component("event_publisher")}
}

// PublishConversation emits a change on the conversations table.
func (p *EventPublisher) PublishConversation(ctx context.Context, typ events.ChangeType, record, old *conversation.Conversation) {
	var rec, prev any
	if record != nil {
		rec = record
	}
	if old != nil {
		prev = old
	}
	p.publish(ctx, events.TableConversations, typ, rec, prev)
}

// PublishMessageNew emits the insert of m.
func (p *EventPublisher) PublishMessageNew(ctx context.Context, m message.Message) {
	p.publish(ctx, events.TableMessages, events.ChangeInsert, m, nil)
}

func (p *EventPublisher) publish(ctx context.Context, table string, typ events.ChangeType, record, old any) {
	if p == nil || p.bus == nil {
		return
	}
	ev, err := events.NewChangeEvent(table, typ, record, old)
	if err != nil {
		p.log.Ctx(ctx).Error("build change event", zap.String("table", table), zap.Error(err))
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.log.Ctx(ctx).Warn("publish change event",
			zap.String("table", table),
			zap.String("type", string(typ)),
			zap.String("event_id", ev.ID.String()),
			zap.Error(err))
	}
}
