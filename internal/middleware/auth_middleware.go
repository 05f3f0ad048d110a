package middleware

import (
	"context"
	"net/http"
	"strings"

	"support-chat/internal/services"
	"support-chat/internal/transport/httpdto"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TokenVerifier is the part of services.AuthService the middleware needs.
type TokenVerifier interface {
	ParseAccessToken(token string) (services.AccessClaims, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

func AuthMiddleware(service TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c)
		claims, err := service.ParseAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}

		isAdmin, err := service.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("role lookup failed", "SERVICE_UNAVAILABLE"))
			c.Abort()
			return
		}

		ctx := services.WithUserContext(c.Request.Context(), userID)
		ctx = services.WithAdminContext(ctx, isAdmin)
		ctx = context.WithValue(ctx, logger.UserIdKey, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin rejects callers the auth middleware did not mark as admin.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !services.IsAdminFromContext(c.Request.Context()) {
			c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("admin role required", "FORBIDDEN"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractBearer reads the Authorization header, falling back to the
// access_token query parameter used by browser WebSocket clients.
func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(c.Query("access_token"))
}
