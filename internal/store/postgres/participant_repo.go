package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chatrelay/internal/domain"
)

// ListIDsForUser returns the conversations the user participates in.
func (r *ConversationRepo) ListIDsForUser(ctx context.Context, userID domain.UserID) ([]domain.ConversationID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id
		FROM conversation_participants
		WHERE user_id = $1
		ORDER BY conversation_id ASC
	`, int64(userID))
	if err != nil {
		return nil, fmt.Errorf("list conversations for user: %w", err)
	}
	defer rows.Close()

	ids := []domain.ConversationID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, domain.ConversationID(id))
	}
	return ids, rows.Err()
}

// ListMemberIDs returns the participants of a conversation, or
// domain.ErrNotFound when the conversation does not exist.
func (r *ConversationRepo) ListMemberIDs(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY user_id ASC
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	return scanUserIDs(rows)
}

func scanUserIDs(rows *sql.Rows) ([]domain.UserID, error) {
	ids := []domain.UserID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, domain.UserID(id))
	}
	return ids, rows.Err()
}
