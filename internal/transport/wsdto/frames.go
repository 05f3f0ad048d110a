package wsdto

import "support-chat/internal/events"

// Frame types exchanged on the realtime gateway.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeEvent        = "event"
	TypeError        = "error"
	TypePong         = "pong"
)

// ClientFrame is sent by a connected client.
type ClientFrame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ServerFrame is sent by the gateway: a reply to a ClientFrame carrying the
// same request id, or an event pushed for a subscribed channel.
type ServerFrame struct {
	Type      string              `json:"type"`
	Channel   string              `json:"channel,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Event     *events.ChangeEvent `json:"event,omitempty"`
	Error     string              `json:"error,omitempty"`
	Code      string              `json:"code,omitempty"`
}
