package services

import (
	"errors"
	"net/http"

	support_errors "support-chat/pkg/errors"
)

// HTTPStatus maps a service error to the response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, support_errors.ErrInvalidInput), errors.Is(err, support_errors.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, support_errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, support_errors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, support_errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, support_errors.ErrConflict), errors.Is(err, support_errors.ErrConversationClosed):
		return http.StatusConflict
	case errors.Is(err, support_errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, support_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps a service error to the envelope code string.
func ErrorCode(err error) string {
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		if errors.Is(err, support_errors.ErrConversationClosed) {
			return "CONVERSATION_CLOSED"
		}
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
