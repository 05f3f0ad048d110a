package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process bus with the same routing as RedisBus.
// Handlers run synchronously on the publishing goroutine. It backs
// single-node deployments without Redis and the package tests.
type MemoryBus struct {
	resolver ChannelResolver

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewMemoryBus(resolver ChannelResolver) *MemoryBus {
	if resolver == nil {
		resolver = NewTableChannelResolver()
	}
	return &MemoryBus{
		resolver: resolver,
		subs:     make(map[string]map[int]Handler),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event ChangeEvent) error {
	for _, channel := range b.resolver.ResolveChannels(event) {
		b.mu.RLock()
		handlers := make([]Handler, 0, len(b.subs[channel]))
		for _, h := range b.subs[channel] {
			handlers = append(handlers, h)
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			h(event)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]Handler)
	}
	b.subs[channel][id] = handler
	return &memorySubscription{bus: b, channel: channel, id: id}, nil
}

// SubscriberCount returns the number of live subscriptions on channel.
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	id      int
	once    sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.channel], s.id)
		if len(s.bus.subs[s.channel]) == 0 {
			delete(s.bus.subs, s.channel)
		}
	})
	return nil
}
