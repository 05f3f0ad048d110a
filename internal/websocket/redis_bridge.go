package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"support-chat/internal/events"
	"support-chat/internal/transport/wsdto"
)

// RedisBridge holds one bus subscription per channel that has at least one
// connected listener and fans received events out through the hub.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	log        *Logger

	mu     sync.Mutex
	subs   map[string]*bridgeSubscription
	closed bool
}

var ErrBridgeClosed = errors.New("websocket: bridge closed")

type bridgeSubscription struct {
	refs int
	sub  events.Subscription
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub, log *Logger) *RedisBridge {
	if log == nil {
		log = NewLogger(nil)
	}
	return &RedisBridge{
		subscriber: subscriber,
		hub:        hub,
		log:        log,
		subs:       make(map[string]*bridgeSubscription),
	}
}

// Acquire adds a listener to channel, subscribing on the bus for the first
// one. The bus handshake runs without the bridge lock; when two callers race
// on a new channel the loser's handle is closed and it joins the winner's.
func (b *RedisBridge) Acquire(ctx context.Context, channel string) error {
	if b.join(channel) {
		return nil
	}

	sub, err := b.subscriber.Subscribe(ctx, channel, func(ev events.ChangeEvent) {
		b.forward(channel, ev)
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = sub.Close()
		return ErrBridgeClosed
	}
	if s, ok := b.subs[channel]; ok {
		s.refs++
		b.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	b.subs[channel] = &bridgeSubscription{refs: 1, sub: sub}
	b.mu.Unlock()

	b.log.Info("bus_subscribed", nil, zap.String("channel", channel))
	return nil
}

func (b *RedisBridge) join(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[channel]; ok {
		s.refs++
		return true
	}
	return false
}

// Release drops a listener, closing the bus subscription with the last one.
func (b *RedisBridge) Release(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[channel]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	delete(b.subs, channel)
	if err := s.sub.Close(); err != nil {
		b.log.Error("bus_unsubscribe", nil, err, zap.String("channel", channel))
	}
}

// ActiveChannels returns the number of channels held open on the bus.
func (b *RedisBridge) ActiveChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close releases every bus subscription.
func (b *RedisBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for channel, s := range b.subs {
		_ = s.sub.Close()
		delete(b.subs, channel)
	}
}

func (b *RedisBridge) forward(channel string, ev events.ChangeEvent) {
	payload, err := json.Marshal(wsdto.ServerFrame{Type: wsdto.TypeEvent, Channel: channel, Event: &ev})
	if err != nil {
		b.log.Error("encode_event", nil, err, zap.String("channel", channel))
		return
	}
	b.hub.Broadcast(channel, payload)
}
