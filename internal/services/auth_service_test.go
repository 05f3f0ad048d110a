package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	support_errors "support-chat/pkg/errors"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	userID := uuid.New()

	token, err := SignAccessToken(secret, userID, "cliente@tienda.local", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := ParseAccessToken(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != userID.String() || claims.Email != "cliente@tienda.local" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	t.Run("wrong secret", func(t *testing.T) {
		if _, err := ParseAccessToken([]byte("other"), token); !errors.Is(err, support_errors.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired, _ := SignAccessToken(secret, userID, "", -time.Minute)
		if _, err := ParseAccessToken(secret, expired); !errors.Is(err, support_errors.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := ParseAccessToken(secret, ""); !errors.Is(err, support_errors.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected no user in empty context")
	}
	id := uuid.New()
	ctx = WithAdminContext(WithUserContext(ctx, id), true)
	got, ok := UserIDFromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
	if !IsAdminFromContext(ctx) {
		t.Fatal("expected admin flag")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{nil, http.StatusOK, "INTERNAL_ERROR"},
		{support_errors.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST"},
		{support_errors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
		{support_errors.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{support_errors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{support_errors.ErrConflict, http.StatusConflict, "CONFLICT"},
		{support_errors.ErrConversationClosed, http.StatusConflict, "CONVERSATION_CLOSED"},
		{support_errors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
		if tt.err == nil {
			continue
		}
		if got := ErrorCode(tt.err); got != tt.code {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.code)
		}
	}
}
