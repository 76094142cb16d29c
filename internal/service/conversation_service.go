package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
)

// NotifyConversationCreated subscribes the live connections of every member to
// the new room and tells each member about it. Members offline right now pick
// the room up from the store on their next connect.
func (s *RealtimeService) NotifyConversationCreated(
	ctx context.Context,
	id domain.ConversationID,
	memberIDs []domain.UserID,
	payload any,
) (int, error) {
	if id <= 0 {
		return 0, fmt.Errorf("conversation id %d: %w", id, domain.ErrInvalidInput)
	}
	members := lo.Uniq(lo.Filter(memberIDs, func(uid domain.UserID, _ int) bool { return uid > 0 }))
	if len(members) == 0 {
		return 0, fmt.Errorf("conversation %s has no members: %w", id, domain.ErrInvalidInput)
	}

	conns := lo.FlatMap(members, func(uid domain.UserID, _ int) []*presence.Conn {
		return s.registry.ConnectionsOf(uid)
	})
	joined := s.rooms.JoinAll(conns, id)
	delivered := s.router.UnicastToUsers(ctx, members, domain.EventNewConversation, payload)

	s.log.Debug("conversation announced",
		zap.Stringer("conversation_id", id),
		zap.Int("members", len(members)),
		zap.Int("joined", joined),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}

func (s *RealtimeService) joinConversation(ctx context.Context, c *presence.Conn, id domain.ConversationID) error {
	exists, err := s.conversations.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("check conversation %s: %w", id, err)
	}
	if !exists {
		// Nothing to join; the client may be racing a deletion.
		return nil
	}

	members, err := s.conversations.ListMemberIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("list members of %s: %w", id, err)
	}
	if !lo.Contains(members, c.UserID()) {
		return fmt.Errorf("user %s is not a member of conversation %s: %w", c.UserID(), id, domain.ErrForbidden)
	}
	s.rooms.Join(c, id)
	return nil
}
