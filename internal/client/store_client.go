// Package client talks to the support-chat server: StoreClient over the
// HTTP API and BusClient over the realtime gateway. Both satisfy the
// interfaces the chatsync sessions consume.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/transport/httpdto"
	support_errors "support-chat/pkg/errors"
)

const DefaultTimeout = 15 * time.Second

// StoreClient is the conversation store reached over HTTP with a bearer
// token. The token's subject is the only identity it can act as.
type StoreClient struct {
	baseURL    string
	token      string
	userID     uuid.UUID
	httpClient *http.Client
}

type Option func(*StoreClient)

func WithHTTPClient(c *http.Client) Option {
	return func(s *StoreClient) { s.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(s *StoreClient) { s.httpClient.Timeout = d }
}

// NewStoreClient reads the user id from the token's subject without
// verifying it; the server does that on every request.
func NewStoreClient(baseURL, token string, opts ...Option) (*StoreClient, error) {
	userID, err := TokenSubject(token)
	if err != nil {
		return nil, err
	}
	c := &StoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userID:     userID,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TokenSubject returns the uuid in the token's sub claim.
func TokenSubject(token string) (uuid.UUID, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token subject %q: %w", claims.Subject, support_errors.ErrUnauthorized)
	}
	return id, nil
}

func (c *StoreClient) UserID() uuid.UUID {
	return c.userID
}

func (c *StoreClient) CreateConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := c.self(owner); err != nil {
		return conv, err
	}
	err := c.do(ctx, http.MethodPost, "/v1/support/conversations/new", nil, &conv)
	return conv, err
}

func (c *StoreClient) FindOpenConversation(ctx context.Context, owner uuid.UUID) (conversation.Conversation, error) {
	var conv conversation.Conversation
	if err := c.self(owner); err != nil {
		return conv, err
	}
	err := c.do(ctx, http.MethodGet, "/v1/support/conversations/open", nil, &conv)
	return conv, err
}

// Resolve is the server-side find-or-create in one round trip.
func (c *StoreClient) Resolve(ctx context.Context) (conversation.Conversation, bool, error) {
	var res httpdto.ResolveConversationResponse
	err := c.do(ctx, http.MethodPost, "/v1/support/conversations", nil, &res)
	return res.Conversation, res.Created, err
}

func (c *StoreClient) GetConversation(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var conv conversation.Conversation
	err := c.do(ctx, http.MethodGet, "/v1/support/conversations/"+id.String(), nil, &conv)
	return conv, err
}

func (c *StoreClient) UpdateConversationStatus(ctx context.Context, id uuid.UUID, status conversation.Status) error {
	var action string
	switch status {
	case conversation.StatusClosed:
		action = "close"
	case conversation.StatusOpen:
		action = "reopen"
	default:
		return fmt.Errorf("status %q: %w", status, support_errors.ErrInvalidTransition)
	}
	return c.do(ctx, http.MethodPost, "/v1/admin/conversations/"+id.String()+"/"+action, nil, nil)
}

func (c *StoreClient) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/admin/conversations/"+id.String(), nil, nil)
}

func (c *StoreClient) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	var res httpdto.MessageListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/support/conversations/"+conversationID.String()+"/messages", nil, &res); err != nil {
		return nil, err
	}
	if res.Messages == nil {
		res.Messages = []message.Message{}
	}
	return res.Messages, nil
}

func (c *StoreClient) SendMessage(ctx context.Context, conversationID, sender uuid.UUID, content string, isAdmin bool) (message.Message, error) {
	var m message.Message
	if err := c.self(sender); err != nil {
		return m, err
	}
	body := httpdto.SendMessageRequest{Content: content, IsAdmin: isAdmin}
	err := c.do(ctx, http.MethodPost, "/v1/support/conversations/"+conversationID.String()+"/messages", body, &m)
	return m, err
}

func (c *StoreClient) OwnerLabel(ctx context.Context, owner uuid.UUID) (string, error) {
	var res httpdto.LabelResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/users/"+owner.String()+"/label", nil, &res); err != nil {
		return "", err
	}
	return res.Label, nil
}

func (c *StoreClient) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	summaries, err := c.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Conversation, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.Conversation)
	}
	return out, nil
}

// ListSummaries returns the inbox with labels already resolved server side.
func (c *StoreClient) ListSummaries(ctx context.Context) ([]conversation.Summary, error) {
	var res httpdto.InboxResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/conversations", nil, &res); err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

func (c *StoreClient) IsAdmin(ctx context.Context) (bool, error) {
	var res httpdto.AdminCheckResponse
	err := c.do(ctx, http.MethodGet, "/v1/support/me/admin", nil, &res)
	return res.IsAdmin, err
}

func (c *StoreClient) self(id uuid.UUID) error {
	if id == uuid.Nil || id != c.userID {
		return fmt.Errorf("acting as %s: %w", id, support_errors.ErrForbidden)
	}
	return nil
}

func (c *StoreClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, support_errors.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	var env httpdto.Response[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, errorFromStatus(resp.StatusCode))
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s: %w", method, path, env.Error, errorFromCode(env.Code, resp.StatusCode))
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
	}
	return nil
}
