package client

import (
	"net/http"

	support_errors "support-chat/pkg/errors"
)

// errorFromCode maps an error envelope back to the sentinel the server
// started from.
func errorFromCode(code string, status int) error {
	switch code {
	case "INVALID_REQUEST":
		return support_errors.ErrInvalidInput
	case "UNAUTHORIZED":
		return support_errors.ErrUnauthorized
	case "FORBIDDEN":
		return support_errors.ErrForbidden
	case "NOT_FOUND":
		return support_errors.ErrNotFound
	case "CONFLICT":
		return support_errors.ErrConflict
	case "CONVERSATION_CLOSED":
		return support_errors.ErrConversationClosed
	case "RATE_LIMITED":
		return support_errors.ErrRateLimited
	case "SERVICE_UNAVAILABLE":
		return support_errors.ErrServiceUnavailable
	}
	return errorFromStatus(status)
}

func errorFromStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return support_errors.ErrInvalidInput
	case http.StatusUnauthorized:
		return support_errors.ErrUnauthorized
	case http.StatusForbidden:
		return support_errors.ErrForbidden
	case http.StatusNotFound:
		return support_errors.ErrNotFound
	case http.StatusConflict:
		return support_errors.ErrConflict
	case http.StatusTooManyRequests:
		return support_errors.ErrRateLimited
	default:
		return support_errors.ErrServiceUnavailable
	}
}
