package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"

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

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_seen WHERE conversation_id = $1 ORDER BY user_id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("load seen by: %w", err)
	}
	seenBy, err := scanUserIDs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	st.SeenBy = seenBy

	rows, err = r.db.QueryContext(ctx,
		`SELECT user_id, unread_count FROM conversation_unread WHERE conversation_id = $1`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("load unread counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var uid int64
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		st.UnreadCounts[domain.UserID(uid)] = n
	}
	return st, rows.Err()
}

// SaveSeenState replaces the stored state of the conversation in one
// transaction. A conversation that no longer exists yields domain.ErrNotFound.
func (r *SeenStateRepo) SaveSeenState(ctx context.Context, st *domain.SeenState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cid := int64(st.ConversationID)
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR KEY SHARE`, cid).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %d: %w", st.ConversationID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_seen WHERE conversation_id = $1`, cid); err != nil {
		return fmt.Errorf("clear seen by: %w", err)
	}
	if len(st.SeenBy) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_seen (conversation_id, user_id)
			SELECT $1, uid FROM unnest($2::bigint[]) AS uid
			ON CONFLICT DO NOTHING
		`, cid, toInt64s(st.SeenBy)); err != nil {
			return fmt.Errorf("insert seen by: %w", err)
		}
	}

	if len(st.UnreadCounts) > 0 {
		users := lo.Keys(st.UnreadCounts)
		counts := lo.Map(users, func(uid domain.UserID, _ int) int64 { return int64(st.UnreadCounts[uid]) })
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_unread (conversation_id, user_id, unread_count)
			SELECT $1, u.uid, u.n FROM unnest($2::bigint[], $3::bigint[]) AS u(uid, n)
			ON CONFLICT (conversation_id, user_id) DO UPDATE SET unread_count = EXCLUDED.unread_count
		`, cid, toInt64s(users), counts); err != nil {
			return fmt.Errorf("upsert unread counts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
