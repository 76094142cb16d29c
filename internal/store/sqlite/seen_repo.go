package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chatrelay/internal/domain"
)

type SeenStateRepo struct {
	db *sql.DB
}

func NewSeenStateRepo(db *sql.DB) *SeenStateRepo {
	return &SeenStateRepo{db: db}
}

var _ domain.SeenStateRepository = (*SeenStateRepo)(nil)

func (r *SeenStateRepo) LoadSeenState(ctx context.Context, id domain.ConversationID) (*domain.SeenState, error) {
	st := &domain.SeenState{ConversationID: id, UnreadCounts: map[domain.UserID]int{}}

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_seen WHERE conversation_id = ? ORDER BY user_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load seen by: %w", err)
	}
	seenBy, err := scanUserIDs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	st.SeenBy = seenBy

	rows, err = r.db.QueryContext(ctx, `
		SELECT user_id, unread_count FROM conversation_unread WHERE conversation_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load unread counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid domain.UserID
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		st.UnreadCounts[uid] = n
	}
	return st, rows.Err()
}

// SaveSeenState replaces the stored state of the conversation. A conversation
// that no longer exists yields domain.ErrNotFound.
func (r *SeenStateRepo) SaveSeenState(ctx context.Context, st *domain.SeenState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := replaceSeenState(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func replaceSeenState(ctx context.Context, tx *sql.Tx, st *domain.SeenState) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, st.ConversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %d: %w", st.ConversationID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_seen WHERE conversation_id = ?`, st.ConversationID); err != nil {
		return fmt.Errorf("clear seen by: %w", err)
	}
	for _, uid := range st.SeenBy {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_seen (conversation_id, user_id) VALUES (?, ?)
		`, st.ConversationID, uid); err != nil {
			return fmt.Errorf("insert seen by: %w", err)
		}
	}
	for uid, n := range st.UnreadCounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_unread (conversation_id, user_id, unread_count)
			VALUES (?, ?, ?)
			ON CONFLICT (conversation_id, user_id) DO UPDATE SET unread_count = excluded.unread_count
		`, st.ConversationID, uid, n); err != nil {
			return fmt.Errorf("upsert unread count: %w", err)
		}
	}
	return nil
}
