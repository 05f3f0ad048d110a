package services

import (
	"context"
	"time"

	"support-chat/config"
	"support-chat/internal/repository"
	support_errors "support-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService verifies access tokens issued by the identity provider and
// answers role lookups. Sign-up and login live with the provider.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

type AccessClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	return ParseAccessToken(s.jwtSecret, tokenString)
}

// ParseAccessToken validates an HMAC signed token against secret.
func ParseAccessToken(secret []byte, tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, support_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, support_errors.ErrUnauthorized
		}
		return secret, nil
	})
	if err != nil {
		return AccessClaims{}, support_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, support_errors.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return AccessClaims{}, support_errors.ErrUnauthorized
	}

	return *claims, nil
}

// SignAccessToken mints an HS256 token for userID. Used by development
// tooling; production tokens come from the identity provider.
func SignAccessToken(secret []byte, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", support_errors.ErrInvalidInput
	}
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (s *AuthService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, support_errors.ErrUnauthorized
	}
	return s.userRepo.IsAdmin(ctx, userID)
}

type ctxKey string

var userIDKey ctxKey = "user_id"
var isAdminKey ctxKey = "is_admin"

func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(userIDKey)
	id, ok := val.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func WithAdminContext(ctx context.Context, isAdmin bool) context.Context {
	return context.WithValue(ctx, isAdminKey, isAdmin)
}

// IsAdminFromContext reports the role resolved by the auth middleware.
func IsAdminFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(isAdminKey).(bool)
	return v
}
