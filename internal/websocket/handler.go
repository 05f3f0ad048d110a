package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/internal/transport/wsdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authorizer decides whether a user may subscribe to a channel.
type Authorizer interface {
	CanSubscribe(ctx context.Context, userID uuid.UUID, isAdmin bool, channel string) (bool, error)
}

// Handler upgrades authenticated requests and runs the subscribe protocol.
type Handler struct {
	hub        *Hub
	bridge     *RedisBridge
	authorizer Authorizer
	log        *Logger
	upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, bridge *RedisBridge, authorizer Authorizer, log *Logger) *Handler {
	if log == nil {
		log = NewLogger(nil)
	}
	return &Handler{
		hub:        hub,
		bridge:     bridge,
		authorizer: authorizer,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect must run behind the auth middleware.
func (h *Handler) Connect(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	isAdmin := services.IsAdminFromContext(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, userID, isAdmin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	go client.WriteLoop(ctx)
	h.log.Info("connected", client)

	h.readLoop(ctx, client)

	for _, channel := range client.GetChannels() {
		h.bridge.Release(channel)
	}
	h.hub.Unregister(client)
	h.log.Info("disconnected", client)
}

func (h *Handler) readLoop(ctx context.Context, client *Client) {
	conn := client.Conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Error("unexpected_close", client, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame wsdto.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			client.SendFrame(wsdto.ServerFrame{Type: wsdto.TypeError, Error: "malformed frame", Code: "INVALID_REQUEST"})
			continue
		}
		if !client.limiter.Allow() {
			h.log.Warn("rate_limited", client, zap.String("frame", frame.Type))
			client.SendFrame(wsdto.ServerFrame{Type: wsdto.TypeError, Channel: frame.Channel, RequestID: frame.RequestID, Error: "rate limit exceeded", Code: "RATE_LIMITED"})
			continue
		}
		h.handleFrame(ctx, client, frame)
	}
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, frame wsdto.ClientFrame) {
	reply := wsdto.ServerFrame{Channel: frame.Channel, RequestID: frame.RequestID}

	switch frame.Type {
	case wsdto.TypePing:
		reply.Type = wsdto.TypePong
	case wsdto.TypeSubscribe:
		if client.IsSubscribed(frame.Channel) {
			reply.Type = wsdto.TypeSubscribed
			break
		}
		allowed, err := h.authorizer.CanSubscribe(ctx, client.UserID, client.IsAdmin, frame.Channel)
		if err != nil {
			h.log.Error("authorize", client, err, zap.String("channel", frame.Channel))
			reply.Type, reply.Error, reply.Code = wsdto.TypeError, "authorization failed", "INTERNAL_ERROR"
			break
		}
		if !allowed {
			reply.Type, reply.Error, reply.Code = wsdto.TypeError, "forbidden", "FORBIDDEN"
			break
		}
		if err := h.bridge.Acquire(ctx, frame.Channel); err != nil {
			h.log.Error("subscribe_error", client, err, zap.String("channel", frame.Channel))
			reply.Type, reply.Error, reply.Code = wsdto.TypeError, "subscribe failed", "SERVICE_UNAVAILABLE"
			break
		}
		if err := h.hub.Subscribe(ctx, client, frame.Channel); err != nil {
			h.bridge.Release(frame.Channel)
			reply.Type, reply.Error, reply.Code = wsdto.TypeError, "subscribe failed", "SERVICE_UNAVAILABLE"
			break
		}
		h.log.Info("subscribed", client, zap.String("channel", frame.Channel))
		reply.Type = wsdto.TypeSubscribed
	case wsdto.TypeUnsubscribe:
		if client.IsSubscribed(frame.Channel) {
			if err := h.hub.Unsubscribe(ctx, client, frame.Channel); err == nil {
				h.bridge.Release(frame.Channel)
			}
		}
		reply.Type = wsdto.TypeUnsubscribed
	default:
		reply.Type, reply.Error, reply.Code = wsdto.TypeError, "unknown frame type", "INVALID_REQUEST"
	}

	client.SendFrame(reply)
}
