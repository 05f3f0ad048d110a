package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"support-chat/pkg/logger"
)

// RedisBus publishes change events over Redis Pub/Sub and hands out one
// Redis subscription per Subscribe call.
type RedisBus struct {
	client   *redis.Client
	resolver ChannelResolver
	log      *logger.Logger
}

func NewRedisBus(client *redis.Client, resolver ChannelResolver, l *logger.Logger) *RedisBus {
	if resolver == nil {
		resolver = NewTableChannelResolver()
	}
	return &RedisBus{
		client:   client,
		resolver: resolver,
		log:      logger.OrNop(l).Component("event_bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, event ChangeEvent) error {
	channels := b.resolver.ResolveChannels(event)
	if len(channels) == 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var errs []error
	for _, channel := range channels {
		if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
			b.log.Logger.Warn("publish failed", zap.String("channel", channel), zap.Error(err))
			errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe opens a subscription on channel and waits for Redis to confirm it.
// ctx bounds only the subscribe handshake; the subscription lives until Close.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{pubsub: ps, done: make(chan struct{})}
	go sub.listen(channel, handler, b.log)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
	err    error
}

func (s *redisSubscription) listen(channel string, handler Handler, l *logger.Logger) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				l.Logger.Warn("dropping malformed event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			select {
			case <-s.done:
				return
			default:
			}
			handler(ev)
		}
	}
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.pubsub.Close()
	})
	return s.err
}
