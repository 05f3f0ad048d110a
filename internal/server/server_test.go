package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/google/uuid"

	"support-chat/config"
	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/domain/user"
	"support-chat/internal/events"
	"support-chat/internal/repository"
	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/internal/transport/wsdto"
)

const testSecret = "server-test-secret"

type testEnv struct {
	app      *App
	store    *repository.MemoryStore
	ts       *httptest.Server
	customer uuid.UUID
	other    uuid.UUID
	admin    uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	env := &testEnv{store: store, customer: uuid.New(), other: uuid.New(), admin: uuid.New()}
	store.PutUser(user.User{ID: env.customer, Email: "cliente@tienda.local"}, false)
	store.PutUser(user.User{ID: env.admin, Email: "soporte@tienda.local"}, true)

	cfg := &config.Config{AppMode: TestMode, AppPort: "0", JWTSecret: testSecret}
	env.app = NewApp(cfg, nil, Backend{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Users:         store.Users(),
		Bus:           events.NewMemoryBus(nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go env.app.Run(ctx)
	env.ts = httptest.NewServer(env.app.Server.Engine())
	t.Cleanup(func() {
		env.ts.Close()
		cancel()
	})
	return env
}

func (e *testEnv) token(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tok, err := services.SignAccessToken([]byte(testSecret), id, "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, as uuid.UUID, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if as != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, as))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) resolve(t *testing.T, as uuid.UUID) conversation.Conversation {
	t.Helper()
	var res httpdto.Response[httpdto.ResolveConversationResponse]
	code := e.do(t, as, http.MethodPost, "/v1/support/conversations", nil, &res)
	if code != http.StatusOK && code != http.StatusCreated {
		t.Fatalf("resolve: status %d", code)
	}
	return res.Data.Conversation
}

func TestResolveConversation(t *testing.T) {
	env := newTestEnv(t)

	var first httpdto.Response[httpdto.ResolveConversationResponse]
	if code := env.do(t, env.customer, http.MethodPost, "/v1/support/conversations", nil, &first); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	var second httpdto.Response[httpdto.ResolveConversationResponse]
	if code := env.do(t, env.customer, http.MethodPost, "/v1/support/conversations", nil, &second); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if first.Data.Conversation.ID != second.Data.Conversation.ID || second.Data.Created {
		t.Fatal("expected the open conversation to be reused")
	}

	if code := env.do(t, env.customer, http.MethodPost, "/v1/support/conversations/new", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 creating a second open conversation, got %d", code)
	}

	var open httpdto.Response[conversation.Conversation]
	if code := env.do(t, env.customer, http.MethodGet, "/v1/support/conversations/open", nil, &open); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if open.Data.ID != first.Data.Conversation.ID {
		t.Fatalf("unexpected open conversation %s", open.Data.ID)
	}

	if code := env.do(t, env.other, http.MethodGet, "/v1/support/conversations/open", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for a user without conversations, got %d", code)
	}
	if code := env.do(t, uuid.Nil, http.MethodPost, "/v1/support/conversations", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
}

func TestConversationAccess(t *testing.T) {
	env := newTestEnv(t)
	conv := env.resolve(t, env.customer)
	path := "/v1/support/conversations/" + conv.ID.String()

	if code := env.do(t, env.other, http.MethodGet, path, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a stranger, got %d", code)
	}
	if code := env.do(t, env.admin, http.MethodGet, path, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
	if code := env.do(t, env.customer, http.MethodGet, "/v1/support/conversations/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if code := env.do(t, env.customer, http.MethodGet, "/v1/admin/conversations", nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 on admin route, got %d", code)
	}

	var check httpdto.Response[httpdto.AdminCheckResponse]
	env.do(t, env.admin, http.MethodGet, "/v1/support/me/admin", nil, &check)
	if !check.Data.IsAdmin {
		t.Fatal("expected admin check to succeed")
	}
	check = httpdto.Response[httpdto.AdminCheckResponse]{}
	env.do(t, env.customer, http.MethodGet, "/v1/support/me/admin", nil, &check)
	if check.Data.IsAdmin {
		t.Fatal("expected customer not to be admin")
	}
}

func TestSendAndList(t *testing.T) {
	env := newTestEnv(t)
	conv := env.resolve(t, env.customer)
	path := "/v1/support/conversations/" + conv.ID.String() + "/messages"

	var sent httpdto.Response[message.Message]
	code := env.do(t, env.customer, http.MethodPost, path, httpdto.SendMessageRequest{Content: "Hola, necesito ayuda", IsAdmin: true}, &sent)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if sent.Data.IsAdmin {
		t.Fatal("customer must not be able to send as admin")
	}

	code = env.do(t, env.admin, http.MethodPost, path, httpdto.SendMessageRequest{Content: "¿En qué podemos ayudarte?", IsAdmin: true}, &sent)
	if code != http.StatusCreated || !sent.Data.IsAdmin {
		t.Fatalf("expected admin message, got %d %+v", code, sent.Data)
	}

	if code := env.do(t, env.customer, http.MethodPost, path, httpdto.SendMessageRequest{Content: "   "}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", code)
	}

	var list httpdto.Response[httpdto.MessageListResponse]
	env.do(t, env.customer, http.MethodGet, path, nil, &list)
	if len(list.Data.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list.Data.Messages))
	}
	for i := 1; i < len(list.Data.Messages); i++ {
		if list.Data.Messages[i].CreatedAt.Before(list.Data.Messages[i-1].CreatedAt) {
			t.Fatal("messages are not in ascending order")
		}
	}
}

func TestAdminLifecycle(t *testing.T) {
	env := newTestEnv(t)
	conv := env.resolve(t, env.customer)
	id := conv.ID.String()

	var closed httpdto.Response[conversation.Conversation]
	if code := env.do(t, env.admin, http.MethodPost, "/v1/admin/conversations/"+id+"/close", nil, &closed); code != http.StatusOK {
		t.Fatalf("close: %d", code)
	}
	if closed.Data.Status != conversation.StatusClosed {
		t.Fatalf("expected closed, got %s", closed.Data.Status)
	}

	var status httpdto.Response[httpdto.ConversationStatusResponse]
	env.do(t, env.customer, http.MethodGet, "/v1/support/conversations/"+id+"/status", nil, &status)
	if status.Data.Status != conversation.StatusClosed {
		t.Fatalf("expected polled status closed, got %s", status.Data.Status)
	}

	var errRes httpdto.Response[any]
	code := env.do(t, env.customer, http.MethodPost, "/v1/support/conversations/"+id+"/messages", httpdto.SendMessageRequest{Content: "hola?"}, &errRes)
	if code != http.StatusConflict || errRes.Code != "CONVERSATION_CLOSED" {
		t.Fatalf("expected CONVERSATION_CLOSED, got %d %s", code, errRes.Code)
	}

	if code := env.do(t, env.admin, http.MethodPost, "/v1/admin/conversations/"+id+"/reopen", nil, nil); code != http.StatusOK {
		t.Fatalf("reopen: %d", code)
	}

	// a second open conversation blocks reopening the first
	env.do(t, env.admin, http.MethodPost, "/v1/admin/conversations/"+id+"/close", nil, nil)
	fresh := env.resolve(t, env.customer)
	if fresh.ID == conv.ID {
		t.Fatal("expected a new conversation after close")
	}
	if code := env.do(t, env.admin, http.MethodPost, "/v1/admin/conversations/"+id+"/reopen", nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}

	var inbox httpdto.Response[httpdto.InboxResponse]
	env.do(t, env.admin, http.MethodGet, "/v1/admin/conversations", nil, &inbox)
	if len(inbox.Data.Conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(inbox.Data.Conversations))
	}
	for _, s := range inbox.Data.Conversations {
		if s.UserEmail != "cliente@tienda.local" {
			t.Fatalf("unexpected label %q", s.UserEmail)
		}
	}

	if code := env.do(t, env.admin, http.MethodGet, "/v1/admin/users/"+uuid.NewString()+"/label", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown label, got %d", code)
	}

	if code := env.do(t, env.admin, http.MethodDelete, "/v1/admin/conversations/"+id, nil, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code := env.do(t, env.admin, http.MethodGet, "/v1/support/conversations/"+id, nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
	msgs, _ := env.app.Support.ListMessages(context.Background(), conv.ID)
	if len(msgs) != 0 {
		t.Fatalf("expected messages to cascade, %d left", len(msgs))
	}
}

func dialRealtime(t *testing.T, env *testEnv, as uuid.UUID) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/realtime?access_token=" + env.token(t, as)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *gorilla.Conn, frame wsdto.ClientFrame) wsdto.ServerFrame {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readFrame(t, conn)
}

func readFrame(t *testing.T, conn *gorilla.Conn) wsdto.ServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsdto.ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestRealtimeGateway(t *testing.T) {
	env := newTestEnv(t)
	conv := env.resolve(t, env.customer)
	channel := events.ConversationMessagesChannel(conv.ID)

	customer := dialRealtime(t, env, env.customer)

	if f := roundTrip(t, customer, wsdto.ClientFrame{Type: wsdto.TypeSubscribe, Channel: events.ChannelConversationsFeed, RequestID: "1"}); f.Type != wsdto.TypeError || f.Code != "FORBIDDEN" {
		t.Fatalf("expected forbidden on global feed, got %+v", f)
	}
	f := roundTrip(t, customer, wsdto.ClientFrame{Type: wsdto.TypeSubscribe, Channel: channel, RequestID: "2"})
	if f.Type != wsdto.TypeSubscribed || f.RequestID != "2" {
		t.Fatalf("expected subscribed, got %+v", f)
	}

	stranger := dialRealtime(t, env, env.other)
	if f := roundTrip(t, stranger, wsdto.ClientFrame{Type: wsdto.TypeSubscribe, Channel: channel, RequestID: "3"}); f.Type != wsdto.TypeError {
		t.Fatalf("expected stranger to be refused, got %+v", f)
	}

	admin := dialRealtime(t, env, env.admin)
	if f := roundTrip(t, admin, wsdto.ClientFrame{Type: wsdto.TypeSubscribe, Channel: events.ChannelMessagesFeed, RequestID: "4"}); f.Type != wsdto.TypeSubscribed {
		t.Fatalf("expected admin feed subscription, got %+v", f)
	}

	env.do(t, env.admin, http.MethodPost, "/v1/support/conversations/"+conv.ID.String()+"/messages",
		httpdto.SendMessageRequest{Content: "¿En qué podemos ayudarte?", IsAdmin: true}, nil)

	for _, conn := range []*gorilla.Conn{customer, admin} {
		ev := readFrame(t, conn)
		if ev.Type != wsdto.TypeEvent || ev.Event == nil || ev.Event.Table != events.TableMessages {
			t.Fatalf("expected message event, got %+v", ev)
		}
		var m message.Message
		if err := ev.Event.Decode(&m); err != nil || m.Content != "¿En qué podemos ayudarte?" || !m.IsAdmin {
			t.Fatalf("unexpected event payload %+v (%v)", m, err)
		}
	}

	if f := roundTrip(t, customer, wsdto.ClientFrame{Type: wsdto.TypeUnsubscribe, Channel: channel, RequestID: "5"}); f.Type != wsdto.TypeUnsubscribed {
		t.Fatalf("expected unsubscribed, got %+v", f)
	}
	if f := roundTrip(t, customer, wsdto.ClientFrame{Type: wsdto.TypePing, RequestID: "6"}); f.Type != wsdto.TypePong {
		t.Fatalf("expected pong, got %+v", f)
	}
	if got := env.app.Bridge.ActiveChannels(); got != 1 {
		t.Fatalf("expected only the admin feed to stay on the bus, got %d", got)
	}
	if got := env.app.Hub.Stats().Channels; got != 1 {
		t.Fatalf("expected one channel with listeners, got %d", got)
	}
}
