package httpdto

import "support-chat/internal/domain/conversation"

// ResolveConversationResponse is returned by the find-or-create endpoint.
type ResolveConversationResponse struct {
	Conversation conversation.Conversation `json:"conversation"`
	Created      bool                      `json:"created"`
}

type ConversationStatusResponse struct {
	ID     string              `json:"id"`
	Status conversation.Status `json:"status"`
}

type InboxResponse struct {
	Conversations []conversation.Summary `json:"conversations"`
}

type LabelResponse struct {
	UserID string `json:"user_id"`
	Label  string `json:"label"`
}

type AdminCheckResponse struct {
	IsAdmin bool `json:"is_admin"`
}
