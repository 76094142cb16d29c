package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatrelay/internal/domain"
)

type MessageDeletedPayload struct {
	MessageID      domain.MessageID      `json:"messageId"`
	ConversationID domain.ConversationID `json:"conversationId"`
}

// NotifyNewMessage relays a stored message to the room together with the
// conversation's updated read state. The returned count is the number of
// connections that received new_message.
func (s *RealtimeService) NotifyNewMessage(
	ctx context.Context,
	id domain.ConversationID,
	senderID domain.UserID,
	payload any,
) (int, error) {
	if id <= 0 || senderID <= 0 {
		return 0, fmt.Errorf("new message for conversation %d from %d: %w", id, senderID, domain.ErrInvalidInput)
	}

	_, delivered, err := s.seen.RelayNewMessage(ctx, id, senderID, payload)
	if err != nil {
		return 0, fmt.Errorf("reconcile new message: %w", err)
	}

	s.log.Debug("message relayed",
		zap.Stringer("conversation_id", id),
		zap.Stringer("sender_id", senderID),
		zap.Int("delivered", delivered),
	)
	return delivered, nil
}

// NotifyMessageDeleted tells the room that a message is gone.
func (s *RealtimeService) NotifyMessageDeleted(ctx context.Context, id domain.ConversationID, messageID domain.MessageID) (int, error) {
	if id <= 0 || messageID <= 0 {
		return 0, fmt.Errorf("deleted message %d in conversation %d: %w", messageID, id, domain.ErrInvalidInput)
	}
	return s.router.BroadcastToRoom(ctx, id, domain.EventMessageDeleted, MessageDeletedPayload{
		MessageID:      messageID,
		ConversationID: id,
	}), nil
}
