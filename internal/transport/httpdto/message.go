package httpdto

import "support-chat/internal/domain/message"

// SendMessageRequest is the body of a message send. IsAdmin is honoured only
// for admin callers.
type SendMessageRequest struct {
	Content string `json:"content"`
	IsAdmin bool   `json:"is_admin"`
}

type MessageListResponse struct {
	Messages []message.Message `json:"messages"`
}
