package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/internal/domain/user"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	AdminEmail      string
	CreateTestUsers bool
	TestUserCount   int
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		AdminEmail:      "soporte@tienda.local",
		CreateTestUsers: true,
		TestUserCount:   3,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	AdminUser     *user.User
	TestUsers     []*user.User
	Conversations []*conversation.Conversation
	Messages      []*message.Message
}

// Seed runs the complete database seeding inside one transaction.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	result := &SeedResult{}
	log.Println("Starting database seeding...")

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		admin, err := seedUser(ctx, tx, cfg.AdminEmail)
		if err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO admin_users (user_id, is_admin) VALUES ($1, TRUE)
			ON CONFLICT (user_id) DO UPDATE SET is_admin = TRUE
		`, admin.ID); err != nil {
			return fmt.Errorf("failed to grant admin: %w", err)
		}
		result.AdminUser = admin

		if !cfg.CreateTestUsers {
			return nil
		}
		for i := 1; i <= cfg.TestUserCount; i++ {
			u, err := seedUser(ctx, tx, fmt.Sprintf("cliente%d@tienda.local", i))
			if err != nil {
				return fmt.Errorf("failed to seed test user: %w", err)
			}
			result.TestUsers = append(result.TestUsers, u)

			conv, msgs, err := seedConversation(ctx, tx, u, admin)
			if err != nil {
				return fmt.Errorf("failed to seed conversation: %w", err)
			}
			if conv != nil {
				result.Conversations = append(result.Conversations, conv)
				result.Messages = append(result.Messages, msgs...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database seeding completed successfully!")
	return result, nil
}

func seedUser(ctx context.Context, tx pgx.Tx, email string) (*user.User, error) {
	u := &user.User{}
	err := tx.QueryRow(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, created_at
	`, uuid.New(), email).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// seedConversation opens a conversation for customer unless one is already open.
func seedConversation(ctx context.Context, tx pgx.Tx, customer, admin *user.User) (*conversation.Conversation, []*message.Message, error) {
	var openCount int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = $1 AND status = 'open'`, customer.ID).Scan(&openCount); err != nil {
		return nil, nil, err
	}
	if openCount > 0 {
		return nil, nil, nil
	}

	now := time.Now().UTC()
	conv := &conversation.Conversation{
		ID:            uuid.New(),
		UserID:        customer.ID,
		Status:        conversation.StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (id, user_id, status, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ID, conv.UserID, string(conv.Status), conv.CreatedAt, conv.UpdatedAt, conv.LastMessageAt); err != nil {
		return nil, nil, err
	}

	script := []struct {
		sender  uuid.UUID
		content string
		isAdmin bool
	}{
		{customer.ID, "Hola, necesito ayuda con mi pedido", false},
		{admin.ID, "¿En qué podemos ayudarte?", true},
	}
	msgs := make([]*message.Message, 0, len(script))
	for i, line := range script {
		m := &message.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       line.sender,
			Content:        line.content,
			IsAdmin:        line.isAdmin,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, is_admin, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, m.ID, m.ConversationID, m.SenderID, m.Content, m.IsAdmin, m.CreatedAt); err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, m)
	}
	return conv, msgs, nil
}

// Truncate empties every table owned by the schema.
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE messages, conversations, admin_users, users CASCADE`)
	return err
}
