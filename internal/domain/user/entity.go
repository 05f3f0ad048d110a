package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the contact directory entry mirrored from the auth provider.
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// AdminUser represents the admin_users table
type AdminUser struct {
	UserID    uuid.UUID
	IsAdmin   bool
	CreatedAt time.Time
}
