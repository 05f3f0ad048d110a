package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"support-chat/internal/events"
	"support-chat/internal/transport/wsdto"
	support_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	replyTimeout   = 10 * time.Second
	realtimePath   = "/v1/realtime"
	maxMessageSize = 64 * 1024
)

// ErrBusClosed is returned once the connection is gone.
var ErrBusClosed = errors.New("realtime connection closed")

// BusClient is one gateway connection multiplexing any number of local
// subscriptions. The gateway holds one subscription per channel per
// connection, so local handlers are reference counted and the channel is
// released when the last one closes.
type BusClient struct {
	conn *websocket.Conn
	log  *logger.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	handlers  map[string]map[uint64]events.Handler
	confirmed map[string]bool
	pending   map[string]chan wsdto.ServerFrame
	nextID    uint64
	closed    bool
	done      chan struct{}
}

// DialBus connects to the realtime gateway of the server at baseURL.
func DialBus(ctx context.Context, baseURL, token string, l *logger.Logger) (*BusClient, error) {
	wsURL, err := gatewayURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: status %d: %w", resp.StatusCode, errorFromStatus(resp.StatusCode))
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	b := &BusClient{
		conn:      conn,
		log:       logger.OrNop(l).Component("realtime_client"),
		handlers:  make(map[string]map[uint64]events.Handler),
		confirmed: make(map[string]bool),
		pending:   make(map[string]chan wsdto.ServerFrame),
		done:      make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func gatewayURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + realtimePath)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe registers handler on channel and, the first time the channel is
// used, waits for the gateway to confirm it. Events published after
// Subscribe returns are delivered.
func (b *BusClient) Subscribe(ctx context.Context, channel string, handler events.Handler) (events.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.nextID++
	id := b.nextID
	if b.handlers[channel] == nil {
		b.handlers[channel] = make(map[uint64]events.Handler)
	}
	b.handlers[channel][id] = handler
	confirmed := b.confirmed[channel]
	b.mu.Unlock()

	sub := &busSubscription{bus: b, channel: channel, id: id}
	if confirmed {
		return sub, nil
	}

	reply, err := b.request(ctx, wsdto.ClientFrame{Type: wsdto.TypeSubscribe, Channel: channel})
	if err == nil && reply.Type == wsdto.TypeError {
		err = fmt.Errorf("subscribe %s: %s: %w", channel, reply.Error, errorFromCode(reply.Code, 0))
	}
	if err != nil {
		b.remove(channel, id, false)
		return nil, err
	}

	b.mu.Lock()
	if len(b.handlers[channel]) > 0 {
		b.confirmed[channel] = true
	}
	b.mu.Unlock()
	return sub, nil
}

// Ping round-trips a ping frame.
func (b *BusClient) Ping(ctx context.Context) error {
	reply, err := b.request(ctx, wsdto.ClientFrame{Type: wsdto.TypePing})
	if err != nil {
		return err
	}
	if reply.Type != wsdto.TypePong {
		return fmt.Errorf("unexpected reply %q", reply.Type)
	}
	return nil
}

// Close drops every subscription and the connection. Idempotent.
func (b *BusClient) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = make(map[string]map[uint64]events.Handler)
	b.confirmed = make(map[string]bool)
	b.mu.Unlock()

	b.writeMu.Lock()
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	b.writeMu.Unlock()
	err := b.conn.Close()
	<-b.done
	return err
}

// Done is closed when the read loop exits.
func (b *BusClient) Done() <-chan struct{} {
	return b.done
}

func (b *BusClient) request(ctx context.Context, frame wsdto.ClientFrame) (wsdto.ServerFrame, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return wsdto.ServerFrame{}, ErrBusClosed
	}
	b.nextID++
	frame.RequestID = "req-" + strconv.FormatUint(b.nextID, 10)
	ch := make(chan wsdto.ServerFrame, 1)
	b.pending[frame.RequestID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, frame.RequestID)
		b.mu.Unlock()
	}()

	if err := b.write(frame); err != nil {
		return wsdto.ServerFrame{}, err
	}

	timer := time.NewTimer(replyTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-b.done:
		return wsdto.ServerFrame{}, ErrBusClosed
	case <-ctx.Done():
		return wsdto.ServerFrame{}, ctx.Err()
	case <-timer.C:
		return wsdto.ServerFrame{}, fmt.Errorf("%s: no reply: %w", frame.Type, support_errors.ErrServiceUnavailable)
	}
}

func (b *BusClient) write(frame wsdto.ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", frame.Type, err)
	}
	return nil
}

func (b *BusClient) readLoop() {
	defer close(b.done)
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			intentional := b.closed
			b.closed = true
			b.mu.Unlock()
			if !intentional && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Logger.Warn("connection lost", zap.Error(err))
			}
			return
		}

		var frame wsdto.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			b.log.Logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		if frame.Type == wsdto.TypeEvent {
			b.dispatch(frame)
			continue
		}
		if frame.RequestID == "" {
			if frame.Type == wsdto.TypeError {
				b.log.Logger.Warn("gateway error", zap.String("error", frame.Error), zap.String("code", frame.Code))
			}
			continue
		}
		b.mu.Lock()
		ch, ok := b.pending[frame.RequestID]
		b.mu.Unlock()
		if ok {
			ch <- frame
		}
	}
}

func (b *BusClient) dispatch(frame wsdto.ServerFrame) {
	if frame.Event == nil {
		return
	}
	b.mu.Lock()
	handlers := make([]events.Handler, 0, len(b.handlers[frame.Channel]))
	for _, h := range b.handlers[frame.Channel] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(*frame.Event)
	}
}

// remove drops one local handler. The last handler on a channel releases
// the gateway subscription without waiting for the reply.
func (b *BusClient) remove(channel string, id uint64, release bool) {
	b.mu.Lock()
	delete(b.handlers[channel], id)
	last := len(b.handlers[channel]) == 0
	if last {
		delete(b.handlers, channel)
	}
	unsubscribe := last && release && b.confirmed[channel] && !b.closed
	if last {
		delete(b.confirmed, channel)
	}
	b.mu.Unlock()

	if unsubscribe {
		if err := b.write(wsdto.ClientFrame{Type: wsdto.TypeUnsubscribe, Channel: channel}); err != nil {
			b.log.Logger.Debug("unsubscribe", zap.String("channel", channel), zap.Error(err))
		}
	}
}

type busSubscription struct {
	bus     *BusClient
	channel string
	id      uint64
	once    sync.Once
}

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		s.bus.remove(s.channel, s.id, true)
	})
	return nil
}
