package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samber/lo"

	"chatrelay/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, memberIDs []domain.UserID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (name, is_group, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`, c.Name, c.IsGroup).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	if len(memberIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (user_id, conversation_id, joined_at)
			SELECT uid, $1, NOW() FROM unnest($2::bigint[]) AS uid
			ON CONFLICT DO NOTHING
		`, int64(c.ID), toInt64s(memberIDs))
		if err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Exists(ctx context.Context, id domain.ConversationID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, int64(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("conversation exists: %w", err)
	}
	return exists, nil
}

func toInt64s(ids []domain.UserID) []int64 {
	return lo.Map(ids, func(id domain.UserID, _ int) int64 { return int64(id) })
}
