package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	support_errors "support-chat/pkg/errors"
)

const conversationColumns = `id, user_id, status, created_at, updated_at, last_message_at`

type PostgresConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (conversation.Conversation, error) {
	var c conversation.Conversation
	var status string
	if err := row.Scan(&c.ID, &c.UserID, &status, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt); err != nil {
		return conversation.Conversation{}, err
	}
	c.Status = conversation.Status(status)
	return c, nil
}

// Create inserts c. A second open conversation for the same owner violates
// conversations_one_open_per_user and is reported as ErrConflict.
func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = conversation.StatusOpen
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	c.LastMessageAt = c.CreatedAt

	_, err := r.db.Exec(ctx, `
		INSERT INTO conversations (id, user_id, status, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.UserID, string(c.Status), c.CreatedAt, c.UpdatedAt, c.LastMessageAt)
	return mapErr(err)
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		return conversation.Conversation{}, mapErr(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (conversation.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID))
	if err != nil {
		return conversation.Conversation{}, mapErr(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) ListByActivity(ctx context.Context) ([]conversation.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		ORDER BY last_message_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status conversation.Status) (conversation.Conversation, error) {
	if !status.Valid() {
		return conversation.Conversation{}, support_errors.ErrInvalidInput
	}
	c, err := scanConversation(r.db.QueryRow(ctx, `
		UPDATE conversations
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+conversationColumns,
		string(status), id))
	if err != nil {
		return conversation.Conversation{}, mapErr(err)
	}
	return c, nil
}

func (r *PostgresConversationRepository) Delete(ctx context.Context, id uuid.UUID) (conversation.Conversation, []message.Message, error) {
	var (
		deleted conversation.Conversation
		removed []message.Message
	)
	err := WithTx(ctx, r.db, func(tx DBTX) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM messages WHERE conversation_id = $1
			RETURNING `+messageColumns, id)
		if err != nil {
			return err
		}
		removed, err = collectMessages(rows)
		if err != nil {
			return err
		}

		deleted, err = scanConversation(tx.QueryRow(ctx, `
			DELETE FROM conversations WHERE id = $1
			RETURNING `+conversationColumns, id))
		return err
	})
	if err != nil {
		return conversation.Conversation{}, nil, mapErr(err)
	}
	return deleted, removed, nil
}
