package websocket

import (
	"context"
	"sync"
)

type membershipChange struct {
	client *Client
	topic  string
	join   bool
	done   chan struct{}
}

// Hub tracks gateway connections and which of them listen on each bus
// channel. Membership changes are serialized through Run; Broadcast reads
// the table directly.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	listeners map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	changes    chan membershipChange
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		listeners:  make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		changes:    make(chan membershipChange, 512),
	}
}

// Run applies registrations and membership changes until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
		case client := <-h.unregister:
			h.drop(client)
		case change := <-h.changes:
			if change.join {
				h.join(change.client, change.topic)
			} else {
				h.leave(change.client, change.topic)
			}
			close(change.done)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe returns once client is listening on channel, so any event
// broadcast afterwards reaches it.
func (h *Hub) Subscribe(ctx context.Context, client *Client, channel string) error {
	return h.apply(ctx, membershipChange{client: client, topic: channel, join: true})
}

func (h *Hub) Unsubscribe(ctx context.Context, client *Client, channel string) error {
	return h.apply(ctx, membershipChange{client: client, topic: channel})
}

func (h *Hub) apply(ctx context.Context, change membershipChange) error {
	change.done = make(chan struct{})
	select {
	case h.changes <- change:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-change.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast queues payload on every client listening on channel. Slow
// clients drop frames rather than stall the bus listener.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.listeners[channel] {
		c.SendMessage(payload)
	}
}

// Stats is the gateway view reported by /health.
type Stats struct {
	Clients  int `json:"clients"`
	Channels int `json:"channels"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Clients: len(h.clients), Channels: len(h.listeners)}
}

// SubscriberCount returns the number of clients listening on channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[channel])
}

// drop forgets client and closes its send queue, ending WriteLoop.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for _, channel := range client.GetChannels() {
		h.removeListenerLocked(client, channel)
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) join(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.listeners[channel]
	if !ok {
		set = make(map[*Client]struct{})
		h.listeners[channel] = set
	}
	set[client] = struct{}{}
	client.Subscribe(channel)
}

func (h *Hub) leave(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeListenerLocked(client, channel)
	client.Unsubscribe(channel)
}

func (h *Hub) removeListenerLocked(client *Client, channel string) {
	set, ok := h.listeners[channel]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.listeners, channel)
	}
}
