package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"chatrelay/internal/domain"
)

// conversationRef is the payload of join, leave and seen commands.
type conversationRef struct {
	ConversationID domain.ConversationID `json:"conversationId" validate:"gt=0"`
}

// parseConversationRef accepts {"conversationId": N} or a bare N.
func parseConversationRef(raw json.RawMessage) (*conversationRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing payload: %w", domain.ErrInvalidInput)
	}

	ref := &conversationRef{}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, ref); err != nil {
			return nil, fmt.Errorf("decode payload: %w", domain.ErrInvalidInput)
		}
		return ref, nil
	}
	if err := json.Unmarshal(raw, &ref.ConversationID); err != nil {
		return nil, fmt.Errorf("decode conversation id: %w", domain.ErrInvalidInput)
	}
	return ref, nil
}
